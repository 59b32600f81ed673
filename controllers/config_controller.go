package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// ConfigController serves the upload limits clients validate against.
type ConfigController struct {
	svc *services.PostService
}

func NewConfigController(svc *services.PostService) *ConfigController {
	return &ConfigController{svc: svc}
}

// GetLimits returns maxAttachments and maxUploadBytes.
func (c *ConfigController) GetLimits(ctx *gin.Context) {
	utils.Success(ctx, c.svc.Limits())
}

// Health reports liveness.
func (c *ConfigController) Health(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"ok": true})
}

package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// StatsController provides blog statistics such as post and attachment counts.
type StatsController struct {
	svc    *services.PostService
	logger *zap.Logger
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(svc *services.PostService, logger *zap.Logger) *StatsController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsController{svc: svc, logger: logger}
}

// GetStats returns aggregate statistics for the blog.
func (s *StatsController) GetStats(ctx *gin.Context) {
	stats, err := s.svc.Stats(ctx.Request.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50030, "Internal server error")
		return
	}
	utils.Success(ctx, stats)
}

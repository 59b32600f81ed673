package controllers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/inkwell/storage"
	"github.com/cppla/inkwell/utils"
)

// UploadController serves stored attachment bytes.
type UploadController struct {
	store  *storage.Store
	logger *zap.Logger
}

// NewUploadController creates a new UploadController instance.
func NewUploadController(store *storage.Store, logger *zap.Logger) *UploadController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadController{store: store, logger: logger}
}

// Serve streams /uploads/:storedName. Anything that is not a plain stored
// name is reported as missing.
func (u *UploadController) Serve(ctx *gin.Context) {
	name := ctx.Param("storedName")
	if !storage.ValidName(name) {
		utils.Error(ctx, http.StatusNotFound, 40402, "Not found")
		return
	}
	obj, err := u.store.Open(ctx.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) || errors.Is(err, storage.ErrInvalidName) {
			utils.Error(ctx, http.StatusNotFound, 40402, "Not found")
			return
		}
		u.logger.Error("open upload failed", zap.String("name", name), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50021, "Internal server error")
		return
	}
	defer obj.Body.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ctx.Header("X-Content-Type-Options", "nosniff")

	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		ctx.Header("Content-Type", contentType)
		http.ServeContent(ctx.Writer, ctx.Request, name, obj.ModTime, rs)
		return
	}
	ctx.DataFromReader(http.StatusOK, obj.Size, contentType, obj.Body, nil)
}

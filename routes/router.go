package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/inkwell/config"
	"github.com/cppla/inkwell/controllers"
	"github.com/cppla/inkwell/middleware"
	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/storage"
	"github.com/cppla/inkwell/utils"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Posts  *services.PostService
	Store  *storage.Store
	Logger *zap.Logger
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, deps Deps) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	// Access log goes to its own rolling file when configured
	accessLog := logger
	if cfg.GinPath != "" {
		gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
		if err != nil {
			logger.Warn("gin access log unavailable, using application logger", zap.Error(err))
		} else {
			accessLog = gl
		}
	}
	r.Use(middleware.RequestID())
	r.Use(utils.Ginzap(accessLog, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(accessLog, true))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	postController := controllers.NewPostController(deps.Posts, logger)
	uploadController := controllers.NewUploadController(deps.Store, logger)
	statsController := controllers.NewStatsController(deps.Posts, logger)
	configController := controllers.NewConfigController(deps.Posts)

	r.GET("/uploads/:storedName", uploadController.Serve)
	r.HEAD("/uploads/:storedName", uploadController.Serve)

	api := r.Group("/api")
	api.GET("/health", configController.Health)
	api.GET("/config", configController.GetLimits)
	api.GET("/stats", statsController.GetStats)

	postsGroup := api.Group("/posts")
	postsGroup.GET("", postController.ListPosts)
	postsGroup.GET("/:id", postController.GetPost)

	writes := postsGroup.Group("")
	writes.Use(middleware.RateLimit(cfg.RateLimitPerMinute))
	writes.POST("", postController.CreatePost)
	writes.DELETE("/:id", postController.DeletePost)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "Not found")
	})

	return r
}

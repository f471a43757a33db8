package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goatkit/prodmanager/internal/middleware"
)

// RegisterRoutes mounts the plugin and product-association endpoints.
//
//	GET    /plugins                        list loaded extensions
//	POST   /plugins                        upload and install an archive
//	POST   /plugins/reload                 rediscover the plugins directory
//	GET    /plugins/logs                   buffered extension logs
//	DELETE /plugins/logs                   clear the log buffer
//	GET    /plugins/:name                  one extension with its settings
//	DELETE /plugins/:name                  uninstall
//	PUT    /plugins/:name/config           update settings
//	GET    /products/:id/plugins           linked extensions
//	POST   /products/:id/plugins/:name     link
//	DELETE /products/:id/plugins/:name     unlink
//	GET    /products/:id/plugin-fields     product form fields of linked extensions
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, uploads gin.HandlerFunc) {
	plugins := r.Group("/plugins")
	{
		plugins.GET("", h.HandleList)
		if uploads != nil {
			plugins.POST("", uploads, h.HandleUpload)
		} else {
			plugins.POST("", h.HandleUpload)
		}
		plugins.POST("/reload", h.HandleReload)
		plugins.GET("/logs", h.HandleLogs)
		plugins.DELETE("/logs", h.HandleClearLogs)
		plugins.GET("/:name", h.HandleGet)
		plugins.DELETE("/:name", h.HandleUninstall)
		plugins.PUT("/:name/config", h.HandleUpdateConfig)
	}

	products := r.Group("/products/:id")
	{
		products.GET("/plugins", h.HandleProductPlugins)
		products.POST("/plugins/:name", h.HandleLinkProduct)
		products.DELETE("/plugins/:name", h.HandleUnlinkProduct)
		products.GET("/plugin-fields", h.HandleProductFields)
	}
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Logger *slog.Logger
	// Limiter throttles uploads per client IP when set.
	Limiter        *middleware.RateLimiter
	UploadsPerHour int
	// Metrics mounts the Prometheus handler at /metrics.
	Metrics bool
}

// NewRouter builds the gin engine serving /api/v1.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	var uploads gin.HandlerFunc
	if cfg.Limiter != nil {
		uploads = middleware.RateLimitByIP(cfg.Limiter, cfg.UploadsPerHour)
	}
	h.RegisterRoutes(r.Group("/api/v1"), uploads)
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

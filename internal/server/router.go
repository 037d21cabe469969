package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yumenosora/otakudb-backend/internal/http/handlers"
	"github.com/yumenosora/otakudb-backend/internal/http/middleware"
)

type RouterConfig struct {
	AdminHandler    *handlers.AdminHandler
	CatalogHandler  *handlers.CatalogHandler
	AdminMiddleware *middleware.AdminMiddleware
	AllowOrigins    []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("otakudb-backend"))

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Admin-Token", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	items := router.Group("/api/items")
	{
		items.POST("/:class/:id/view", cfg.CatalogHandler.RecordView)
		items.GET("/:class/:id/related", cfg.CatalogHandler.Related)
	}

	admin := router.Group("/api/admin")
	admin.Use(cfg.AdminMiddleware.RequireAdminToken())
	{
		admin.POST("/popularity/:class/run", cfg.AdminHandler.RunPass)
		admin.GET("/popularity/:class/preview", cfg.AdminHandler.PreviewPass)
		admin.POST("/popularity/notify", cfg.AdminHandler.RunNotify)
		admin.GET("/popularity/stats", cfg.AdminHandler.GetStats)
		admin.POST("/counters/reset", cfg.AdminHandler.ResetCounters)
		admin.POST("/cache/invalidate/:class/:id", cfg.CatalogHandler.InvalidateItem)
	}

	return router
}

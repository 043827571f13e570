package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-converter/api/handlers"
	"github.com/feichai0017/document-converter/api/middleware"
	"github.com/feichai0017/document-converter/pkg/logger"
)

// Prefixes are the route groups serving the API. "/api" keeps the paths
// existing clients use.
var Prefixes = []string{"/api", "/api/v1"}

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger) {
	// 全局中间件
	r.Use(middleware.RequestID(), middleware.Logger(log), middleware.CORS())

	for _, prefix := range Prefixes {
		api := r.Group(prefix)
		{
			api.POST("/convert", h.Conversion.Convert)
			api.GET("/download/:filename", h.Conversion.Download)
			api.GET("/jobs/:id", h.Conversion.Job)
			api.GET("/info", h.Info.Info)
			api.GET("/health", h.Info.Health)
		}
	}
}

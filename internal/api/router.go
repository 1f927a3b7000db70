// Package api is the Gin-based HTTP surface: multipart upload, job
// status/get/list/delete, and CSV export. It holds no pipeline logic of its
// own — every handler delegates to job.Controller.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/bosocmputer/statementpipeline/configs"
	"github.com/bosocmputer/statementpipeline/internal/job"
)

// NewRouter builds the Gin engine and registers every route. CORS follows
// the teacher's middleware-closure idiom with the allowed origins taken from
// config instead of a single hardcoded value.
func NewRouter(cfg *configs.Config, controller *job.Controller) *gin.Engine {
	router := gin.Default()

	router.Use(corsMiddleware(cfg.CORSOrigins))

	h := &handlers{controller: controller}

	router.GET("/", func(c *gin.Context) { c.String(200, "ok") })
	router.GET("/health", h.health)

	router.POST("/statements/upload", h.upload)
	router.GET("/statements/:id/status", h.status)
	router.GET("/statements/:id", h.get)
	router.GET("/statements", h.list)
	router.DELETE("/statements/:id", h.delete)
	router.GET("/statements/:id/csv", h.exportCSV)
	router.GET("/statements/:id/log", h.processingLog)

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", matchOrigin(origins, c.Request.Header.Get("Origin")))
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func matchOrigin(allowed []string, requestOrigin string) string {
	if len(allowed) == 0 {
		return "*"
	}
	for _, o := range allowed {
		if o == "*" || o == requestOrigin {
			return o
		}
	}
	return allowed[0]
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes. The admin surface under
// /api/v1 is JWT-guarded when a secret is configured; health and
// metrics stay public.
func SetupRoutes(router *gin.Engine, handler *Handler, jwtSecret string, metrics http.Handler, readiness map[string]func() error) {
	router.GET("/health", handler.HealthCheck)
	router.GET("/ready", handler.ReadyCheck(readiness))

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/api/v1")
	if jwtSecret != "" {
		v1.Use(JWTMiddleware(jwtSecret))
	}

	attribute := v1.Group("/attribute")
	{
		attribute.POST("", handler.Attribute)            // POST /api/v1/attribute
		attribute.POST("/batch", handler.AttributeBatch) // POST /api/v1/attribute/batch
	}

	cfg := v1.Group("/config")
	{
		cfg.GET("", handler.GetConfig) // GET /api/v1/config
		cfg.PUT("", handler.PutConfig) // PUT /api/v1/config
	}

	diagnostics := v1.Group("/diagnostics")
	{
		diagnostics.GET("", handler.Diagnostics)                        // GET /api/v1/diagnostics
		diagnostics.GET("/unmatched", handler.DiagnosticsUnmatched)     // GET /api/v1/diagnostics/unmatched
		diagnostics.GET("/suggestions", handler.DiagnosticsSuggestions) // GET /api/v1/diagnostics/suggestions
	}
}

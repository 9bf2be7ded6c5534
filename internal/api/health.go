package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/merchantpulse/attribution/internal/logger"
)

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "attribution",
	})
}

// ReadyCheck returns a readiness handler that runs every registered
// dependency check. Any failing check yields 503 with per-check detail.
func (h *Handler) ReadyCheck(checks map[string]func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		detail := make(gin.H, len(checks))

		for name, check := range checks {
			if err := check(); err != nil {
				h.logger.Warn("readiness check failed",
					logger.String("check", name),
					logger.Error(err),
				)
				detail[name] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				detail[name] = "ok"
			}
		}

		ready := status == http.StatusOK
		c.JSON(status, gin.H{"ready": ready, "checks": detail})
	}
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

// Readiness reports 503 when any configured dependency check fails
func Readiness(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		status := http.StatusOK
		checks := make(gin.H, len(deps.HealthChecks))
		for _, hc := range deps.HealthChecks {
			if err := hc.Check(ctx); err != nil {
				deps.Logger.Warn("Readiness check failed",
					slog.String("check", hc.Name),
					slog.Any("error", err),
				)
				checks[hc.Name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[hc.Name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not_ready"
		}
		c.JSON(status, gin.H{
			"status": state,
			"checks": checks,
		})
	}
}

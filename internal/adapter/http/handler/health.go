package handler

import (
	"context"
	"net/http"
	"time"

	"vtupay/internal/core/ports"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler reports service and dependency liveness.
type HealthHandler struct {
	checkers []ports.HealthChecker
}

// NewHealthHandler creates a health handler over the given dependency checkers.
func NewHealthHandler(checkers ...ports.HealthChecker) *HealthHandler {
	return &HealthHandler{checkers: checkers}
}

// Check handles GET /health. Returns 503 when any dependency is down.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checkers))
	for _, checker := range h.checkers {
		if err := checker.Ping(ctx); err != nil {
			deps[checker.Name()] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[checker.Name()] = "up"
	}

	label := "healthy"
	if status != http.StatusOK {
		label = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       label,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

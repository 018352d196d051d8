package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-enroll-api/internal/service"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ReadinessCheck names a dependency pinged by /ready. Optional dependencies are reported
// but never make the service unready.
type ReadinessCheck struct {
	Name     string
	Pinger   Pinger
	Optional bool
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	checks  []ReadinessCheck
	timeout time.Duration
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, checks ...ReadinessCheck) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, checks: checks, timeout: 2 * time.Second}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness checks.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready pings every dependency and answers 503 when a required one is down.
func (h *MetricsHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status, code := "ready", http.StatusOK
	deps := make(gin.H, len(h.checks))
	for _, check := range h.checks {
		if check.Pinger == nil {
			continue
		}
		if err := check.Pinger.PingContext(ctx); err != nil {
			deps[check.Name] = err.Error()
			if !check.Optional {
				status, code = "unavailable", http.StatusServiceUnavailable
			}
			continue
		}
		deps[check.Name] = "up"
	}
	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

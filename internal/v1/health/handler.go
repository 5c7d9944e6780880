package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trivionhq/trivion/internal/v1/bus"
	"github.com/trivionhq/trivion/internal/v1/logging"
	"go.uber.org/zap"
)

// pubSubPinger is implemented by *bus.RedisForwarder. An interface keeps the
// health package decoupled from the forwarder's construction details.
type pubSubPinger interface {
	Ping(ctx context.Context) error
}

// Handler manages health check endpoints
type Handler struct {
	forwarder pubSubPinger
}

// NewHandler creates a new health check handler. Pass nil when the optional
// pub/sub forwarder is disabled (single-process mode) — readiness then
// reports pub/sub as healthy unconditionally.
func NewHandler(forwarder *bus.RedisForwarder) *Handler {
	h := &Handler{}
	if forwarder != nil {
		h.forwarder = forwarder
	}
	return h
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only if all critical dependencies are healthy
// Returns 503 if any dependency is unhealthy
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	pubsubStatus := h.checkPubSub(ctx)
	checks["pubsub"] = pubsubStatus
	if pubsubStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// checkPubSub verifies the optional Redis forwarder connectivity using PING.
// If pub/sub forwarding is disabled (single-process mode), it is healthy by
// definition since no room's delivery depends on it.
func (h *Handler) checkPubSub(ctx context.Context) string {
	if h.forwarder == nil {
		return "healthy"
	}

	if err := h.forwarder.Ping(ctx); err != nil {
		logging.Error(ctx, "pub/sub health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}

// HealthCheckResponse is a generic health check response for backward compatibility
type HealthCheckResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for better formatting
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(&r),
	})
}

package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/locolive/pulse/pkg/response"
)

// Pinger is a dependency checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks  map[string]Pinger
	online  func() int
	version string
	logger  *zap.Logger
}

// NewHealthHandler creates a new health handler. online reports the number
// of connected users and may be nil.
func NewHealthHandler(checks map[string]Pinger, online func() int, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		online:  online,
		version: version,
		logger:  logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   string            `json:"timestamp"`
	Version     string            `json:"version,omitempty"`
	OnlineUsers *int              `json:"onlineUsers,omitempty"`
	Checks      map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) status(s string) HealthResponse {
	return HealthResponse{
		Status:    s,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Health returns the health status
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := h.status("ok")
	resp.Version = h.version
	if h.online != nil {
		n := h.online()
		resp.OnlineUsers = &n
	}
	response.OK(w, resp)
}

// Ready pings every dependency and answers 503 if any fails
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := h.status("ready")
	resp.Checks = make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			healthy = false
			continue
		}
		resp.Checks[name] = "ok"
	}

	if !healthy {
		resp.Status = "not_ready"
		response.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	response.OK(w, resp)
}

// Live returns the liveness status
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.status("alive"))
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/imagegen-gateway/utils"
	"go.uber.org/zap"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	store     Pinger
	providers func() []string
	logger    *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. providers lists the names of
// the configured image providers.
func NewHealthHandler(store Pinger, providers func() []string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:     store,
		providers: providers,
		logger:    logger,
	}
}

// HandleHealth handles GET /healthz
// Liveness check - always returns 200 if the process is serving
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, HealthResponse{Status: "ok"}); err != nil {
		h.logger.Error("failed to write health response", zap.Error(err))
	}
}

// HandleReadiness handles GET /readyz
// Readiness check - the usage store must answer a ping
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	switch {
	case h.store == nil:
		checks["usage_store"] = "not_initialized"
		ready = false
	default:
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("usage store health check failed", zap.Error(err))
			checks["usage_store"] = "unhealthy"
			ready = false
		} else {
			checks["usage_store"] = "healthy"
		}
	}

	// No providers is reported but does not fail readiness
	if h.providers == nil || len(h.providers()) == 0 {
		checks["providers"] = "none_configured"
	} else {
		checks["providers"] = "configured"
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !ready {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

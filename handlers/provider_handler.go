package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/imagegen-gateway/services"
	"github.com/upb/imagegen-gateway/services/dispatcher"
	"github.com/upb/imagegen-gateway/utils"
	"go.uber.org/zap"
)

// ProviderAdmin exposes the provider pool to operators
type ProviderAdmin interface {
	Status() []dispatcher.ProviderStatus
	Reset(ctx context.Context, name string) (bool, error)
}

// ProvidersResponse is returned by GET /api/v1/providers
type ProvidersResponse struct {
	Providers []dispatcher.ProviderStatus `json:"providers"`
}

// ResetResponse is returned by POST /api/v1/providers/{name}/reset
type ResetResponse struct {
	Name  string `json:"name"`
	Reset bool   `json:"reset"`
}

// ProviderHandler handles provider administration requests
type ProviderHandler struct {
	admin  ProviderAdmin
	logger *zap.Logger
}

// NewProviderHandler creates a new ProviderHandler
func NewProviderHandler(admin ProviderAdmin, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{
		admin:  admin,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/providers
func (h *ProviderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := h.admin.Status()
	if status == nil {
		status = []dispatcher.ProviderStatus{}
	}
	if err := utils.WriteOK(w, ProvidersResponse{Providers: status}); err != nil {
		h.logger.Error("failed to write providers response", zap.Error(err))
	}
}

// HandleReset handles POST /api/v1/providers/{name}/reset
func (h *ProviderHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	found, err := h.admin.Reset(r.Context(), name)
	if !found {
		if err := utils.WriteNotFound(w, "Provider not found"); err != nil {
			h.logger.Error("failed to write not found response", zap.Error(err))
		}
		return
	}
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to reset provider usage", err), h.logger)
		return
	}

	h.logger.Info("provider reset by operator", zap.String("provider", name))
	if err := utils.WriteOK(w, ResetResponse{Name: name, Reset: true}); err != nil {
		h.logger.Error("failed to write reset response",
			zap.String("provider", name),
			zap.Error(err))
	}
}

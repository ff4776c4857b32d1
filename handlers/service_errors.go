package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/upb/imagegen-gateway/services"
	"github.com/upb/imagegen-gateway/services/dispatcher"
	"github.com/upb/imagegen-gateway/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps dispatcher and domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	var status int
	var message string
	var attemptsErr *dispatcher.AllAttemptsFailedError

	switch {
	case errors.Is(err, dispatcher.ErrAllProvidersExhausted):
		status, message = http.StatusServiceUnavailable, err.Error()

	case errors.As(err, &attemptsErr):
		// Provider errors are mapped to 502 Bad Gateway
		status, message = http.StatusBadGateway, err.Error()
		details = map[string]interface{}{"attempts": attemptsErr.Attempts}

	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusGatewayTimeout, "Generation timed out"

	case errors.Is(err, context.Canceled):
		logger.Debug("request canceled by client", zap.Error(err))
		status, message = http.StatusRequestTimeout, "Request canceled"

	case services.IsNotFoundError(err):
		status, message = http.StatusNotFound, err.Error()

	case services.IsValidationError(err):
		status, message = http.StatusBadRequest, err.Error()

	case services.IsUnavailableError(err):
		status, message = http.StatusServiceUnavailable, err.Error()

	case services.IsExternalError(err):
		status, message = http.StatusBadGateway, err.Error()

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		status, message, details = http.StatusInternalServerError, "An internal error occurred", nil

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		status, message, details = http.StatusInternalServerError, "An unexpected error occurred", nil
	}

	if err := utils.WriteError(w, status, message, details); err != nil {
		logger.Error("failed to write error response", zap.Int("status", status), zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if errors.Is(err, utils.ErrRequestTooLarge) {
		if err := utils.WriteError(w, http.StatusRequestEntityTooLarge, err.Error(), nil); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

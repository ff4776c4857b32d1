package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/imagegen-gateway/services"
	"github.com/upb/imagegen-gateway/services/dispatcher"
	"github.com/upb/imagegen-gateway/utils"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "providers exhausted",
			err:            dispatcher.ErrAllProvidersExhausted,
			expectedStatus: http.StatusServiceUnavailable,
			expectedError:  "service_unavailable",
		},
		{
			name:           "all attempts failed",
			err:            &dispatcher.AllAttemptsFailedError{Attempts: 3, Err: errors.New("Gemini API error: 500 - boom")},
			expectedStatus: http.StatusBadGateway,
			expectedError:  "bad_gateway",
		},
		{
			name:           "deadline exceeded",
			err:            fmt.Errorf("generate: %w", context.DeadlineExceeded),
			expectedStatus: http.StatusGatewayTimeout,
			expectedError:  "gateway_timeout",
		},
		{
			name:           "client canceled",
			err:            context.Canceled,
			expectedStatus: http.StatusRequestTimeout,
			expectedError:  "request_timeout",
		},
		{
			name:           "not found error",
			err:            services.ErrProviderNotFound,
			expectedStatus: http.StatusNotFound,
			expectedError:  "not_found",
		},
		{
			name:           "validation error",
			err:            services.ErrEmptyPrompt,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "bad_request",
		},
		{
			name:           "unavailable error",
			err:            services.ErrNoProviders,
			expectedStatus: http.StatusServiceUnavailable,
			expectedError:  "service_unavailable",
		},
		{
			name:           "external error",
			err:            services.ErrNoImageReturned,
			expectedStatus: http.StatusBadGateway,
			expectedError:  "bad_gateway",
		},
		{
			name:           "internal error",
			err:            services.WrapInternal("usage store failed", errors.New("disk full")),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
		{
			name:           "unknown error",
			err:            errors.New("something odd"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedError, response.Error)
			assert.NotEmpty(t, response.Message)
		})
	}
}

func TestHandleServiceError_Details(t *testing.T) {
	logger := zap.NewNop()

	t.Run("attempt count", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, &dispatcher.AllAttemptsFailedError{Attempts: 3, Err: errors.New("boom")}, logger)

		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, float64(3), response.Details["attempts"])
		assert.Contains(t, response.Message, "all 3 attempts failed")
	})

	t.Run("internal errors hide the cause", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, services.WrapInternal("query failed", errors.New("password=secret")), logger)

		assert.NotContains(t, w.Body.String(), "secret")
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, nil, logger)

		assert.Empty(t, w.Body.String())
	})
}

func TestHandleValidationError(t *testing.T) {
	logger := zap.NewNop()

	t.Run("field errors", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := &utils.ValidationError{
			Message: "Validation failed",
			Fields:  map[string]string{"prompt": "prompt is required"},
		}

		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "prompt is required", response.Details["prompt"])
	})

	t.Run("body too large", func(t *testing.T) {
		w := httptest.NewRecorder()

		HandleValidationError(w, utils.ErrRequestTooLarge, logger)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("generic error", func(t *testing.T) {
		w := httptest.NewRecorder()

		HandleValidationError(w, errors.New("invalid JSON body"), logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid JSON body")
	})
}

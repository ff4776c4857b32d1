package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/imagegen-gateway/services/providers"
)

func TestAdapter_Execute(t *testing.T) {
	var got InferenceRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/stabilityai/sdxl", r.URL.Path)
		assert.Equal(t, "Bearer hf-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xff, 0xd8, 0xff})
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{BaseURL: server.URL, Model: "stabilityai/sdxl"})
	result, err := adapter.Execute(context.Background(), "hf-key", &providers.GenerateRequest{Prompt: "an old harbour"})

	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,/9j/", result)
	assert.Equal(t, "an old harbour", got.Inputs)
	assert.Equal(t, 20, got.Parameters.NumInferenceSteps)
	assert.Equal(t, 7.5, got.Parameters.GuidanceScale)
}

func TestAdapter_ExecuteErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		errPart     string
	}{
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			contentType: "application/json",
			body:        `{"error":"Rate limit reached"}`,
			errPart:     `HuggingFace API error: 429 - {"error":"Rate limit reached"}`,
		},
		{
			name:        "model loading",
			status:      http.StatusOK,
			contentType: "application/json; charset=utf-8",
			body:        `{"error":"Model is currently loading","estimated_time":20}`,
			errPart:     "currently loading",
		},
		{
			name:        "empty body",
			status:      http.StatusOK,
			contentType: "image/png",
			errPart:     "empty image body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewAdapter(providers.ProviderConfig{BaseURL: server.URL})
			_, err := adapter.Execute(context.Background(), "k", &providers.GenerateRequest{Prompt: "p"})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/imagegen-gateway/services/providers"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAdapter(providers.ProviderConfig{BaseURL: server.URL, Model: "gemini-test"})
}

func TestAdapter_ExecuteRequestShape(t *testing.T) {
	var got map[string]interface{}

	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"a faded portrait"}]},"finishReason":"STOP"}]}`))
	})

	result, err := adapter.Execute(context.Background(), "g-key", &providers.GenerateRequest{
		Prompt: "describe",
		Images: []providers.Image{{Data: []byte("img"), MIMEType: "image/jpeg"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "a faded portrait", result)

	contents := got["contents"].([]interface{})
	parts := contents[0].(map[string]interface{})["parts"].([]interface{})
	require.Len(t, parts, 2)
	assert.Equal(t, "describe", parts[0].(map[string]interface{})["text"])
	inline := parts[1].(map[string]interface{})["inline_data"].(map[string]interface{})
	assert.Equal(t, "image/jpeg", inline["mime_type"])
	assert.Equal(t, "aW1n", inline["data"])
}

func TestAdapter_ExecuteResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		errPart string
	}{
		{
			name:   "inline image wins over text",
			status: http.StatusOK,
			body:   `{"candidates":[{"content":{"parts":[{"text":"here"},{"inlineData":{"mimeType":"image/png","data":"iVBOR"}}]},"finishReason":"STOP"}]}`,
			want:   "data:image/png;base64,iVBOR",
		},
		{
			name:    "blocked prompt",
			status:  http.StatusOK,
			body:    `{"promptFeedback":{"blockReason":"SAFETY"}}`,
			errPart: "blocked. reason: SAFETY",
		},
		{
			name:    "unexpected finish reason",
			status:  http.StatusOK,
			body:    `{"candidates":[{"content":{"parts":[]},"finishReason":"IMAGE_SAFETY"}]}`,
			errPart: "IMAGE_SAFETY",
		},
		{
			name:    "no candidates",
			status:  http.StatusOK,
			body:    `{"candidates":[]}`,
			errPart: "no candidates",
		},
		{
			name:    "quota status",
			status:  http.StatusTooManyRequests,
			body:    `{"error":{"status":"RESOURCE_EXHAUSTED"}}`,
			errPart: "Gemini API error: 429 - ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			result, err := adapter.Execute(context.Background(), "k", &providers.GenerateRequest{Prompt: "p"})
			if tt.errPart != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errPart)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestAdapter_TransportErrorHidesKey(t *testing.T) {
	adapter := NewAdapter(providers.ProviderConfig{BaseURL: "http://127.0.0.1:1", Model: "m"})

	_, err := adapter.Execute(context.Background(), "secret-key-123", &providers.GenerateRequest{Prompt: "p"})
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "secret-key-123"))
}

package replicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/imagegen-gateway/services/providers"
)

func noWait(context.Context, time.Duration) error { return nil }

// predictionServer answers the create call and then serves statuses in order,
// repeating the last one.
func predictionServer(t *testing.T, statuses []string, output string) (*httptest.Server, *int32) {
	t.Helper()
	var polls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token r8-key", r.Header.Get("Authorization"))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/predictions":
			var req PredictionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "owner/model:abc", req.Version)
			assert.Equal(t, "colorize", req.Input.Prompt)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"pred-1","status":"starting"}`))

		case r.Method == http.MethodGet && r.URL.Path == "/predictions/pred-1":
			n := int(atomic.AddInt32(&polls, 1)) - 1
			if n >= len(statuses) {
				n = len(statuses) - 1
			}
			resp := map[string]interface{}{"id": "pred-1", "status": statuses[n]}
			if statuses[n] == statusSucceeded {
				resp["output"] = json.RawMessage(output)
			}
			if statuses[n] == statusFailed {
				resp["error"] = "NSFW content detected"
			}
			json.NewEncoder(w).Encode(resp)

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	t.Cleanup(server.Close)
	return server, &polls
}

func newTestAdapter(url string, maxPolls int) *Adapter {
	return NewAdapter(providers.ProviderConfig{
		BaseURL:  url,
		Model:    "owner/model:abc",
		MaxPolls: maxPolls,
	}, WithWait(noWait))
}

func TestAdapter_ExecuteSucceeded(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"list output", `["https://replicate.delivery/out-0.png","https://replicate.delivery/out-1.png"]`, "https://replicate.delivery/out-0.png"},
		{"string output", `"https://replicate.delivery/single.png"`, "https://replicate.delivery/single.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, polls := predictionServer(t, []string{"starting", "processing", statusSucceeded}, tt.output)
			adapter := newTestAdapter(server.URL, 10)

			result, err := adapter.Execute(context.Background(), "r8-key", &providers.GenerateRequest{
				Prompt: "colorize",
				Images: []providers.Image{{Data: []byte("x"), MIMEType: "image/png"}},
			})

			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
			assert.Equal(t, int32(3), atomic.LoadInt32(polls))
		})
	}
}

func TestAdapter_ExecuteFailed(t *testing.T) {
	server, _ := predictionServer(t, []string{"processing", statusFailed}, "")
	adapter := newTestAdapter(server.URL, 10)

	_, err := adapter.Execute(context.Background(), "r8-key", &providers.GenerateRequest{Prompt: "colorize"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Replicate prediction failed: NSFW content detected")
}

func TestAdapter_ExecuteBoundedPolling(t *testing.T) {
	server, polls := predictionServer(t, []string{"processing"}, "")
	adapter := newTestAdapter(server.URL, 4)

	_, err := adapter.Execute(context.Background(), "r8-key", &providers.GenerateRequest{Prompt: "colorize"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Replicate prediction timeout")
	assert.Equal(t, int32(4), atomic.LoadInt32(polls))
}

func TestAdapter_ExecuteCancelledWhilePolling(t *testing.T) {
	server, _ := predictionServer(t, []string{"processing"}, "")

	ctx, cancel := context.WithCancel(context.Background())
	adapter := NewAdapter(providers.ProviderConfig{
		BaseURL:  server.URL,
		Model:    "owner/model:abc",
		MaxPolls: 100,
	}, WithWait(func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleep(ctx, d)
	}))

	_, err := adapter.Execute(ctx, "r8-key", &providers.GenerateRequest{Prompt: "colorize"})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdapter_ExecuteCreateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"detail":"You have insufficient credit"}`))
	}))
	defer server.Close()

	_, err := newTestAdapter(server.URL, 1).Execute(context.Background(), "r8-key", &providers.GenerateRequest{Prompt: "p"})

	require.Error(t, err)
	assert.Equal(t, `Replicate API error: 402 - {"detail":"You have insufficient credit"}`, err.Error())
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleep(context.Background(), time.Millisecond))
}

package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/upb/imagegen-gateway/services/providers"
)

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter(providers.ProviderConfig{})

	if adapter.Name() != "openrouter" {
		t.Errorf("Name() = %s, want openrouter", adapter.Name())
	}
	if adapter.config.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", adapter.config.BaseURL, defaultBaseURL)
	}
	if adapter.config.Model != defaultModel {
		t.Errorf("Model = %s, want %s", adapter.config.Model, defaultModel)
	}
}

func TestAdapter_Execute(t *testing.T) {
	var got ChatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer or-key-1" {
			t.Errorf("Authorization = %q", auth)
		}
		if ref := r.Header.Get("HTTP-Referer"); ref != "https://example.test" {
			t.Errorf("HTTP-Referer = %q", ref)
		}
		if title := r.Header.Get("X-Title"); title != "Gateway" {
			t.Errorf("X-Title = %q", title)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"restored photo"}}]}`))
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{
		BaseURL: server.URL,
		Model:   "google/gemini-2.5-flash-image-preview",
		Headers: map[string]string{"HTTP-Referer": "https://example.test", "X-Title": "Gateway"},
	})

	result, err := adapter.Execute(context.Background(), "or-key-1", &providers.GenerateRequest{
		Prompt: "restore this photo",
		Images: []providers.Image{{Data: []byte{0x89, 0x50}, MIMEType: "image/png"}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result != "restored photo" {
		t.Errorf("result = %q", result)
	}

	if got.Model != "google/gemini-2.5-flash-image-preview" {
		t.Errorf("model = %s", got.Model)
	}
	if got.MaxTokens != 1024 || got.Temperature != 0.7 {
		t.Errorf("max_tokens/temperature = %d/%v", got.MaxTokens, got.Temperature)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 2 {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	if got.Messages[0].Content[0].Text != "restore this photo" {
		t.Errorf("text part = %q", got.Messages[0].Content[0].Text)
	}
	if url := got.Messages[0].Content[1].ImageURL.URL; !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("image part = %q", url)
	}
}

func TestAdapter_ExecuteResponseShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{
			name: "generated image preferred over text",
			body: `{"choices":[{"message":{"content":"here you go","images":[{"type":"image_url","image_url":{"url":"data:image/png;base64,AAA"}}]}}]}`,
			want: "data:image/png;base64,AAA",
		},
		{
			name: "legacy data url",
			body: `{"data":[{"url":"https://cdn.example/img.png"}]}`,
			want: "https://cdn.example/img.png",
		},
		{
			name:    "empty response",
			body:    `{"choices":[]}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			body:    `{"choices":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewAdapter(providers.ProviderConfig{BaseURL: server.URL})
			result, err := adapter.Execute(context.Background(), "k", &providers.GenerateRequest{Prompt: "p"})

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.want {
				t.Errorf("result = %q, want %q", result, tt.want)
			}
		})
	}
}

func TestAdapter_ExecuteHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"Insufficient credits"}}`))
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{BaseURL: server.URL})
	_, err := adapter.Execute(context.Background(), "k", &providers.GenerateRequest{Prompt: "p"})
	if err == nil {
		t.Fatal("expected error")
	}

	want := `OpenRouter API error: 402 - {"error":{"message":"Insufficient credits"}}`
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

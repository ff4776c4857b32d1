package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/upb/imagegen-gateway/services/providers"
)

const (
	providerName   = "openrouter"
	displayName    = "OpenRouter"
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "google/gemini-2.5-flash-image-preview"

	maxTokens   = 1024
	temperature = 0.7
)

// Adapter implements providers.Adapter for the OpenRouter chat completions API
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates a new OpenRouter adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}

	return &Adapter{
		config:     config,
		httpClient: config.Client(),
	}
}

// Factory is the registry constructor for this adapter.
func Factory(config providers.ProviderConfig) (providers.Adapter, error) {
	return NewAdapter(config), nil
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

// Execute sends the prompt and images as one multimodal user message.
func (a *Adapter) Execute(ctx context.Context, credential string, req *providers.GenerateRequest) (string, error) {
	reqBody, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return "", providers.NewProviderError(displayName, "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", providers.NewProviderError(displayName, "REQUEST_ERROR", "failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+credential)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", providers.NewProviderError(displayName, "HTTP_ERROR", "request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", providers.NewProviderError(displayName, "READ_ERROR", "failed to read response", 0, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", providers.NewHTTPError(displayName, httpResp.StatusCode, respBody)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", providers.NewProviderError(displayName, "UNMARSHAL_ERROR", "failed to unmarshal response", 0, err)
	}

	if content := chatResp.content(); content != "" {
		return content, nil
	}
	return "", providers.NewProviderError(displayName, "EMPTY_RESPONSE", "no content in response", 0, nil)
}

func (a *Adapter) buildRequest(req *providers.GenerateRequest) *ChatRequest {
	parts := make([]ContentPart, 0, len(req.Images)+1)
	parts = append(parts, ContentPart{Type: "text", Text: req.Prompt})
	for _, img := range req.Images {
		parts = append(parts, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: img.DataURI()},
		})
	}

	return &ChatRequest{
		Model: a.config.Model,
		Messages: []Message{
			{Role: "user", Content: parts},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// content picks the first generated image, then the message text, then a
// legacy image URL.
func (r *ChatResponse) content() string {
	if len(r.Choices) > 0 {
		msg := r.Choices[0].Message
		for _, img := range msg.Images {
			if img.ImageURL.URL != "" {
				return img.ImageURL.URL
			}
		}
		if msg.Content != "" {
			return msg.Content
		}
	}
	if len(r.Data) > 0 {
		return r.Data[0].URL
	}
	return ""
}

// OpenRouter-specific request/response types

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Choices []ChatChoice `json:"choices"`
	Data    []ImageURL   `json:"data"`
}

type ChatChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type ResponseMessage struct {
	Role    string          `json:"role"`
	Content string          `json:"content"`
	Images  []ResponseImage `json:"images"`
}

type ResponseImage struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

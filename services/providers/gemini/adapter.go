package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/upb/imagegen-gateway/services/providers"
)

const (
	providerName   = "gemini"
	displayName    = "Gemini"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash-exp"

	finishReasonStop = "STOP"
)

// Adapter implements providers.Adapter for the Gemini generateContent API.
// The credential travels in the key query parameter.
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates a new Gemini adapter
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

// Execute calls generateContent and returns the first image part as a data
// URI, falling back to the first text part.
func (a *Adapter) Execute(ctx context.Context, credential string, req *providers.GenerateRequest) (string, error) {
	reqBody, err := json.Marshal(buildRequest(req))
	if err != nil {
		return "", providers.NewProviderError(displayName, "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?%s",
		a.config.BaseURL, a.config.Model, url.Values{"key": {credential}}.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", providers.NewProviderError(displayName, "REQUEST_ERROR", "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		// url.Error embeds the request URL, which carries the key
		return "", providers.NewProviderError(displayName, "HTTP_ERROR", "request failed", 0, redact(err, credential))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", providers.NewProviderError(displayName, "READ_ERROR", "failed to read response", 0, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", providers.NewHTTPError(displayName, httpResp.StatusCode, respBody)
	}

	var genResp GenerateContentResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", providers.NewProviderError(displayName, "UNMARSHAL_ERROR", "failed to unmarshal response", 0, err)
	}

	return parseResponse(&genResp)
}

func buildRequest(req *providers.GenerateRequest) *GenerateContentRequest {
	parts := make([]Part, 0, len(req.Images)+1)
	parts = append(parts, Part{Text: req.Prompt})
	for _, img := range req.Images {
		parts = append(parts, Part{
			InlineData: &Blob{MIMEType: img.MIMEType, Data: img.Base64()},
		})
	}

	return &GenerateContentRequest{
		Contents: []Content{{Parts: parts}},
	}
}

func parseResponse(resp *GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		msg := "request was blocked. reason: " + resp.PromptFeedback.BlockReason
		if resp.PromptFeedback.BlockReasonMessage != "" {
			msg += ". " + resp.PromptFeedback.BlockReasonMessage
		}
		return "", providers.NewProviderError(displayName, "BLOCKED", msg, 0, nil)
	}

	if len(resp.Candidates) == 0 {
		return "", providers.NewProviderError(displayName, "EMPTY_RESPONSE", "no candidates in response", 0, nil)
	}

	candidate := resp.Candidates[0]
	for _, part := range candidate.Content.Parts {
		if blob := part.image(); blob != nil && blob.Data != "" {
			return "data:" + blob.MIMEType + ";base64," + blob.Data, nil
		}
	}

	if candidate.FinishReason != "" && candidate.FinishReason != finishReasonStop {
		msg := "generation stopped unexpectedly. reason: " + candidate.FinishReason
		return "", providers.NewProviderError(displayName, "FINISH_REASON", msg, 0, nil)
	}

	for _, part := range candidate.Content.Parts {
		if text := strings.TrimSpace(part.Text); text != "" {
			return text, nil
		}
	}

	return "", providers.NewProviderError(displayName, "EMPTY_RESPONSE", "no content in response", 0, nil)
}

func redact(err error, credential string) error {
	if credential == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), credential, "REDACTED"))
}

// Gemini-specific request/response types

type GenerateContentRequest struct {
	Contents []Content `json:"contents"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one content part. Requests use inline_data; responses use inlineData.
type Part struct {
	Text           string `json:"text,omitempty"`
	InlineData     *Blob  `json:"inline_data,omitempty"`
	InlineDataResp *Blob  `json:"inlineData,omitempty"`
}

func (p Part) image() *Blob {
	if p.InlineDataResp != nil {
		return p.InlineDataResp
	}
	return p.InlineData
}

// Blob accepts both snake_case and camelCase MIME type keys.
type Blob struct {
	MIMEType string `json:"mime_type,omitempty"`
	Data     string `json:"data"`
}

func (b *Blob) UnmarshalJSON(data []byte) error {
	var raw struct {
		MIMEType      string `json:"mime_type"`
		MIMETypeCamel string `json:"mimeType"`
		Data          string `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.MIMEType = raw.MIMEType
	if b.MIMEType == "" {
		b.MIMEType = raw.MIMETypeCamel
	}
	b.Data = raw.Data
	return nil
}

type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type PromptFeedback struct {
	BlockReason        string `json:"blockReason"`
	BlockReasonMessage string `json:"blockReasonMessage"`
}

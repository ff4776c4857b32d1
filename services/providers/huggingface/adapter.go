package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/upb/imagegen-gateway/services/providers"
)

const (
	providerName   = "huggingface"
	displayName    = "HuggingFace"
	defaultBaseURL = "https://api-inference.huggingface.co"
	defaultModel   = "stabilityai/stable-diffusion-xl-base-1.0"

	inferenceSteps = 20
	guidanceScale  = 7.5
)

// Adapter implements providers.Adapter for the HuggingFace inference API.
// Text-to-image models take only the prompt; input images are not sent.
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates a new HuggingFace adapter
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

// Execute posts the prompt and returns the image body as a data URI.
func (a *Adapter) Execute(ctx context.Context, credential string, req *providers.GenerateRequest) (string, error) {
	reqBody, err := json.Marshal(&InferenceRequest{
		Inputs: req.Prompt,
		Parameters: InferenceParameters{
			NumInferenceSteps: inferenceSteps,
			GuidanceScale:     guidanceScale,
		},
	})
	if err != nil {
		return "", providers.NewProviderError(displayName, "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/models/"+a.config.Model, bytes.NewReader(reqBody))
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

	mediaType := httpResp.Header.Get("Content-Type")
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}

	// A JSON body on 200 is a status message such as a model still loading.
	if mediaType == "application/json" {
		return "", providers.NewProviderError(displayName, "UNEXPECTED_RESPONSE", strings.TrimSpace(string(respBody)), 0, nil)
	}
	if len(respBody) == 0 {
		return "", providers.NewProviderError(displayName, "EMPTY_RESPONSE", "empty image body", 0, nil)
	}

	return providers.DataURI(mediaType, respBody), nil
}

// HuggingFace-specific request types

type InferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters InferenceParameters `json:"parameters"`
}

type InferenceParameters struct {
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
}

package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/upb/imagegen-gateway/services/providers"
)

const (
	providerName   = "replicate"
	displayName    = "Replicate"
	defaultBaseURL = "https://api.replicate.com/v1"
	defaultModel   = "stability-ai/sdxl:39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b"

	defaultPollInterval = 5 * time.Second
	defaultMaxPolls     = 60
)

// Prediction states reported by the API.
const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
	statusCanceled  = "canceled"
)

// Adapter implements providers.Adapter for Replicate predictions: create a
// prediction, then poll until it settles or MaxPolls is reached.
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	wait       func(ctx context.Context, d time.Duration) error
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithWait replaces the delay between polls. Tests use it to avoid sleeping.
func WithWait(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Adapter) {
		if wait != nil {
			a.wait = wait
		}
	}
}

// NewAdapter creates a new Replicate adapter
func NewAdapter(config providers.ProviderConfig, opts ...Option) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.MaxPolls <= 0 {
		config.MaxPolls = defaultMaxPolls
	}

	a := &Adapter{
		config:     config,
		httpClient: config.Client(),
		wait:       sleep,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Factory is the registry constructor for this adapter.
func Factory(config providers.ProviderConfig) (providers.Adapter, error) {
	return NewAdapter(config), nil
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

// Execute creates a prediction and waits for its output.
func (a *Adapter) Execute(ctx context.Context, credential string, req *providers.GenerateRequest) (string, error) {
	input := PredictionInput{Prompt: req.Prompt}
	if len(req.Images) > 0 {
		input.Image = req.Images[0].DataURI()
	}

	reqBody, err := json.Marshal(&PredictionRequest{Version: a.config.Model, Input: input})
	if err != nil {
		return "", providers.NewProviderError(displayName, "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	var prediction Prediction
	if err := a.do(ctx, http.MethodPost, a.config.BaseURL+"/predictions", credential, reqBody, &prediction); err != nil {
		return "", err
	}
	if prediction.ID == "" {
		return "", providers.NewProviderError(displayName, "EMPTY_RESPONSE", "prediction id missing", 0, nil)
	}

	return a.poll(ctx, credential, prediction.ID)
}

func (a *Adapter) poll(ctx context.Context, credential, id string) (string, error) {
	for polls := 0; polls < a.config.MaxPolls; polls++ {
		var prediction Prediction
		if err := a.do(ctx, http.MethodGet, a.config.BaseURL+"/predictions/"+id, credential, nil, &prediction); err != nil {
			return "", err
		}

		switch prediction.Status {
		case statusSucceeded:
			return prediction.result()
		case statusFailed, statusCanceled:
			msg := fmt.Sprintf("Replicate prediction %s: %v", prediction.Status, prediction.Error)
			return "", providers.NewProviderError(displayName, "PREDICTION_FAILED", msg, 0, nil)
		}

		if err := a.wait(ctx, a.config.PollInterval); err != nil {
			return "", providers.NewProviderError(displayName, "CANCELED", "polling aborted", 0, err)
		}
	}

	return "", providers.NewProviderError(displayName, "TIMEOUT", "Replicate prediction timeout", 0, nil)
}

func (a *Adapter) do(ctx context.Context, method, url, credential string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return providers.NewProviderError(displayName, "REQUEST_ERROR", "failed to create request", 0, err)
	}
	httpReq.Header.Set("Authorization", "Token "+credential)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return providers.NewProviderError(displayName, "HTTP_ERROR", "request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return providers.NewProviderError(displayName, "READ_ERROR", "failed to read response", 0, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return providers.NewHTTPError(displayName, httpResp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return providers.NewProviderError(displayName, "UNMARSHAL_ERROR", "failed to unmarshal response", 0, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// result returns output[0] for list outputs and the output itself for strings.
func (p *Prediction) result() (string, error) {
	var list []string
	if err := json.Unmarshal(p.Output, &list); err == nil && len(list) > 0 {
		return list[0], nil
	}

	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil && single != "" {
		return single, nil
	}

	return "", providers.NewProviderError(displayName, "EMPTY_RESPONSE", "prediction succeeded without output", 0, nil)
}

// Replicate-specific request/response types

type PredictionRequest struct {
	Version string          `json:"version"`
	Input   PredictionInput `json:"input"`
}

type PredictionInput struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image,omitempty"`
}

type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  interface{}     `json:"error"`
}

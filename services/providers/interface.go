package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// Adapter speaks the wire protocol of one upstream image provider.
type Adapter interface {
	// Name returns the provider name (e.g., "gemini", "replicate")
	Name() string

	// Execute sends one generation request authorised by credential and
	// returns the generated content: usually a data URI or image URL,
	// sometimes plain text.
	Execute(ctx context.Context, credential string, req *GenerateRequest) (string, error)
}

// GenerateRequest is the provider-neutral generation request.
type GenerateRequest struct {
	// Prompt is the instruction sent to the model
	Prompt string

	// Images are passed in order; how many are used depends on the provider
	Images []Image
}

// Image is a raw image payload.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURI encodes the image as a self-describing data URI.
func (i Image) DataURI() string {
	return DataURI(i.MIMEType, i.Data)
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURI builds a data URI from a MIME type and raw bytes.
func DataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ProviderConfig holds common configuration for adapters
type ProviderConfig struct {
	// Name is the registry key of the provider
	Name string

	// BaseURL for the API (optional override)
	BaseURL string

	// Model or version identifier sent upstream
	Model string

	// Timeout for a single HTTP round trip
	Timeout time.Duration

	// Additional headers
	Headers map[string]string

	// PollInterval and MaxPolls bound job-style providers
	PollInterval time.Duration
	MaxPolls     int

	// HTTPClient overrides the client built from Timeout
	HTTPClient *http.Client
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:      2 * time.Minute,
		Headers:      make(map[string]string),
		PollInterval: 5 * time.Second,
		MaxPolls:     60,
	}
}

// Client returns the configured HTTP client or a new one honouring Timeout.
func (c ProviderConfig) Client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultProviderConfig().Timeout
	}
	return &http.Client{Timeout: timeout}
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error, as shown to humans ("Gemini")
	Provider string

	// Code is a short machine-readable error code
	Code string

	// Message is the error message or upstream response body
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface. Upstream HTTP failures read as
// "<Provider> API error: <status> - <body>".
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// NewHTTPError builds the error for a non-2xx upstream response.
func NewHTTPError(provider string, statusCode int, body []byte) *ProviderError {
	return NewProviderError(provider, "HTTP_STATUS", string(body), statusCode, nil)
}

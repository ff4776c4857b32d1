package editing

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/upb/imagegen-gateway/services"
	"github.com/upb/imagegen-gateway/services/providers"
	"go.uber.org/zap"
)

// Feature names an image editing operation
type Feature string

const (
	FeatureRestore   Feature = "restore"
	FeatureEdit      Feature = "edit"
	FeatureFilter    Feature = "filter"
	FeatureAdjust    Feature = "adjust"
	FeatureFreeEdit  Feature = "free_edit"
	FeatureMemorial  Feature = "memorial"
	FeatureComposite Feature = "composite"
	FeatureRetouch   Feature = "retouch"
)

// Features lists the supported editing operations
var Features = []Feature{
	FeatureRestore,
	FeatureEdit,
	FeatureFilter,
	FeatureAdjust,
	FeatureFreeEdit,
	FeatureMemorial,
	FeatureComposite,
	FeatureRetouch,
}

// ParseFeature validates a feature name taken from a request path
func ParseFeature(name string) (Feature, error) {
	feature := Feature(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := featureTemplates[feature]; !ok {
		return "", errUnknownFeature(name)
	}
	return feature, nil
}

func errUnknownFeature(name string) error {
	return services.NewDomainError(services.ErrorTypeNotFound, services.ErrFeatureNotFound.Message, nil).
		WithDetail("feature", name)
}

// promptOptional features run without user text
var promptOptional = map[Feature]bool{
	FeatureRestore:  true,
	FeatureMemorial: true,
}

// Hotspot is a pixel position on the base image
type Hotspot struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// EditRequest is one editing call
type EditRequest struct {
	Feature Feature
	Image   providers.Image

	// Source is the second image of a composite
	Source *providers.Image

	// Prompt is the user's instruction; for restore it carries notes about
	// the subjects and for memorial the desired style
	Prompt string

	// Hotspot is required by FeatureEdit
	Hotspot *Hotspot
}

// Generator produces content from a prompt and images
type Generator interface {
	Generate(ctx context.Context, prompt string, images []providers.Image) (string, error)
}

// Service turns editing requests into generation prompts
type Service struct {
	generator Generator
	logger    *zap.Logger
}

// NewService creates a new editing service
func NewService(generator Generator, logger *zap.Logger) *Service {
	return &Service{
		generator: generator,
		logger:    logger.With(zap.String("component", "editing")),
	}
}

// Edit runs an editing feature and returns the resulting image as a data URI
// or URL
func (s *Service) Edit(ctx context.Context, req *EditRequest) (string, error) {
	if err := validateEdit(req); err != nil {
		return "", err
	}

	data := promptData{Prompt: strings.TrimSpace(req.Prompt)}
	if req.Hotspot != nil {
		data.X, data.Y = req.Hotspot.X, req.Hotspot.Y
	}

	prompt, err := renderPrompt(req.Feature, data)
	if err != nil {
		return "", services.WrapInternal("failed to build prompt", err)
	}

	images := []providers.Image{req.Image}
	if req.Feature == FeatureComposite {
		images = append(images, *req.Source)
	}

	s.logger.Info("running edit",
		zap.String("feature", string(req.Feature)),
		zap.Int("images", len(images)),
		zap.Int("prompt_chars", utf8.RuneCountInString(data.Prompt)))

	result, err := s.generator.Generate(ctx, prompt, images)
	if err != nil {
		return "", err
	}

	if !isImageResult(result) {
		s.logger.Warn("model answered without an image",
			zap.String("feature", string(req.Feature)),
			zap.String("answer", truncate(result, 200)))
		return "", services.NewDomainError(services.ErrorTypeExternal, "model did not return an image", nil).
			WithDetail("feature", string(req.Feature)).
			WithDetail("model_text", truncate(result, 500))
	}

	return result, nil
}

func validateEdit(req *EditRequest) error {
	if req == nil {
		return services.ErrInvalidInput
	}
	if _, ok := featureTemplates[req.Feature]; !ok {
		return errUnknownFeature(string(req.Feature))
	}
	if err := validateImage(req.Image, services.ErrMissingImage); err != nil {
		return err
	}
	if !promptOptional[req.Feature] && strings.TrimSpace(req.Prompt) == "" {
		return services.ErrEmptyPrompt
	}

	switch req.Feature {
	case FeatureEdit:
		if req.Hotspot == nil {
			return services.NewDomainError(services.ErrorTypeValidation, "hotspot is required", nil)
		}
		if req.Hotspot.X < 0 || req.Hotspot.Y < 0 {
			return services.NewDomainError(services.ErrorTypeValidation, "hotspot must not be negative", nil).
				WithDetail("x", req.Hotspot.X).
				WithDetail("y", req.Hotspot.Y)
		}
	case FeatureComposite:
		if req.Source == nil {
			return services.ErrMissingSource
		}
		if err := validateImage(*req.Source, services.ErrMissingSource); err != nil {
			return err
		}
	}
	return nil
}

// validateImage requires non-empty image bytes, sniffing the MIME type when
// the caller did not supply one
func validateImage(img providers.Image, missing error) error {
	if len(img.Data) == 0 {
		return missing
	}

	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(img.Data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return services.NewDomainError(services.ErrorTypeValidation, "unsupported image type", nil).
			WithDetail("mime_type", mimeType)
	}
	return nil
}

// NormalizeImage fills in a missing MIME type from the image bytes
func NormalizeImage(img providers.Image) providers.Image {
	if img.MIMEType == "" && len(img.Data) > 0 {
		img.MIMEType = strings.SplitN(http.DetectContentType(img.Data), ";", 2)[0]
	}
	return img
}

// Describe returns a short description of the photo's subjects, suitable as
// restoration notes
func (s *Service) Describe(ctx context.Context, img providers.Image) (string, error) {
	if err := validateImage(img, services.ErrMissingImage); err != nil {
		return "", err
	}

	result, err := s.generator.Generate(ctx, describePrompt, []providers.Image{img})
	if err != nil {
		return "", err
	}

	description := strings.TrimSpace(result)
	if description == "" || isImageResult(description) {
		return "", services.NewDomainError(services.ErrorTypeExternal, "model did not return a description", nil)
	}
	return description, nil
}

// isImageResult reports whether a generation answer is an image rather than
// model text
func isImageResult(result string) bool {
	return strings.HasPrefix(result, "data:image/") ||
		strings.HasPrefix(result, "https://") ||
		strings.HasPrefix(result, "http://")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

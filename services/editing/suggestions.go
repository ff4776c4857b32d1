package editing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/samber/lo"
	"github.com/upb/imagegen-gateway/services"
	"github.com/upb/imagegen-gateway/services/providers"
	"go.uber.org/zap"
)

// SuggestionKind selects which kind of ideas the model is asked for
type SuggestionKind string

const (
	SuggestCreative  SuggestionKind = "creative"
	SuggestComposite SuggestionKind = "composite"
	SuggestFreeEdit  SuggestionKind = "free_edit"
	SuggestMemorial  SuggestionKind = "memorial"
	SuggestRetouch   SuggestionKind = "retouch"
)

// ParseSuggestionKind validates a suggestion kind taken from a request path
func ParseSuggestionKind(name string) (SuggestionKind, error) {
	kind := SuggestionKind(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := suggestionPrompts[kind]; !ok {
		return "", services.NewDomainError(services.ErrorTypeNotFound, "suggestion kind not found", nil).
			WithDetail("kind", name)
	}
	return kind, nil
}

// Suggest asks the model for ready-to-use prompts for the given image. The
// composite kind needs the source image as well.
func (s *Service) Suggest(ctx context.Context, kind SuggestionKind, img providers.Image, source *providers.Image) ([]string, error) {
	prompt, ok := suggestionPrompts[kind]
	if !ok {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "suggestion kind not found", nil).
			WithDetail("kind", string(kind))
	}
	if err := validateImage(img, services.ErrMissingImage); err != nil {
		return nil, err
	}

	images := []providers.Image{img}
	if kind == SuggestComposite {
		if source == nil {
			return nil, services.ErrMissingSource
		}
		if err := validateImage(*source, services.ErrMissingSource); err != nil {
			return nil, err
		}
		images = append(images, *source)
	}

	result, err := s.generator.Generate(ctx, prompt, images)
	if err != nil {
		return nil, err
	}

	suggestions, err := ParseSuggestions(result)
	if err != nil {
		if kind == SuggestRetouch {
			s.logger.Warn("using default retouch suggestions", zap.Error(err))
			return append([]string(nil), retouchFallback...), nil
		}
		return nil, services.NewDomainError(services.ErrorTypeExternal, "model returned no usable suggestions", err).
			WithDetail("kind", string(kind))
	}
	return suggestions, nil
}

var errNoJSONObject = errors.New("no JSON object in model answer")

// ParseSuggestions extracts the "suggestions" array from a model answer. The
// answer may be wrapped in a markdown code fence or surrounded by prose.
func ParseSuggestions(answer string) ([]string, error) {
	text := stripCodeFence(strings.TrimSpace(answer))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, errNoJSONObject
	}

	var payload struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, err
	}

	suggestions := lo.Compact(lo.Map(payload.Suggestions, func(s string, _ int) string {
		return strings.Trim(strings.TrimSpace(s), `"`)
	}))
	if len(suggestions) == 0 {
		return nil, errors.New("empty suggestions array")
	}
	return suggestions, nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	// drop the opening fence line, including any language tag
	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[i+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/imagegen-gateway/middleware"
	"github.com/upb/imagegen-gateway/services/editing"
	"github.com/upb/imagegen-gateway/services/providers"
	"github.com/upb/imagegen-gateway/utils"
	"go.uber.org/zap"
)

// GenerateRequest is the JSON body of POST /api/v1/generate
type GenerateRequest struct {
	Prompt string         `json:"prompt" validate:"required,max=4000"`
	Images []ImagePayload `json:"images,omitempty" validate:"max=4,dive"`
}

// ImagePayload is a base64 encoded image inside a JSON request
type ImagePayload struct {
	MIMEType string `json:"mime_type" validate:"required,image_mime"`
	Data     string `json:"data" validate:"required,base64"`
}

// GenerateResponse is returned by POST /api/v1/generate
type GenerateResponse struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// EditResponse is returned by POST /api/v1/edits/{feature}
type EditResponse struct {
	ID      string `json:"id"`
	Feature string `json:"feature"`
	Image   string `json:"image"`
}

// DescribeResponse is returned by POST /api/v1/describe
type DescribeResponse struct {
	Description string `json:"description"`
}

// SuggestionsResponse is returned by POST /api/v1/suggestions/{kind}
type SuggestionsResponse struct {
	Kind        string   `json:"kind"`
	Suggestions []string `json:"suggestions"`
}

// editForm holds the text fields of an edit upload
type editForm struct {
	Prompt string `json:"prompt" validate:"max=4000"`
	Style  string `json:"style" validate:"max=500"`
	X      *int   `json:"x" validate:"omitempty,gte=0"`
	Y      *int   `json:"y" validate:"omitempty,gte=0"`
}

// Generator produces content from a prompt and images
type Generator interface {
	Generate(ctx context.Context, prompt string, images []providers.Image) (string, error)
}

// Editor runs the image editing features
type Editor interface {
	Edit(ctx context.Context, req *editing.EditRequest) (string, error)
	Describe(ctx context.Context, img providers.Image) (string, error)
	Suggest(ctx context.Context, kind editing.SuggestionKind, img providers.Image, source *providers.Image) ([]string, error)
}

// GenerationHandler handles generation and editing HTTP requests
type GenerationHandler struct {
	generator      Generator
	editor         Editor
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewGenerationHandler creates a new GenerationHandler
func NewGenerationHandler(generator Generator, editor Editor, maxUploadBytes int64, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		generator:      generator,
		editor:         editor,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// HandleGenerate handles POST /api/v1/generate
func (h *GenerationHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req GenerateRequest
	if err := utils.DecodeJSON(w, r, &req, h.maxUploadBytes); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	images := make([]providers.Image, 0, len(req.Images))
	for _, payload := range req.Images {
		data, err := base64.StdEncoding.DecodeString(payload.Data)
		if err != nil {
			HandleValidationError(w, err, h.logger)
			return
		}
		images = append(images, providers.Image{Data: data, MIMEType: payload.MIMEType})
	}

	content, err := h.generator.Generate(ctx, req.Prompt, images)
	if err != nil {
		h.logger.Error("generation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("generation successful",
		zap.String("request_id", requestID),
		zap.Int("images", len(images)))

	if err := utils.WriteOK(w, GenerateResponse{ID: uuid.NewString(), Content: content}); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// HandleEdit handles POST /api/v1/edits/{feature}
func (h *GenerationHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	feature, err := editing.ParseFeature(chi.URLParam(r, "feature"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.ParseMultipart(w, r, h.maxUploadBytes); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	form, err := parseEditForm(r)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	image, source, err := h.readImages(r)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	req := &editing.EditRequest{
		Feature: feature,
		Image:   image,
		Source:  source,
		Prompt:  form.Prompt,
	}
	if req.Prompt == "" {
		req.Prompt = form.Style
	}
	if form.X != nil && form.Y != nil {
		req.Hotspot = &editing.Hotspot{X: *form.X, Y: *form.Y}
	}

	result, err := h.editor.Edit(ctx, req)
	if err != nil {
		h.logger.Error("edit failed",
			zap.String("request_id", requestID),
			zap.String("feature", string(feature)),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("edit successful",
		zap.String("request_id", requestID),
		zap.String("feature", string(feature)))

	response := EditResponse{
		ID:      uuid.NewString(),
		Feature: string(feature),
		Image:   result,
	}
	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// HandleDescribe handles POST /api/v1/describe
func (h *GenerationHandler) HandleDescribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	if err := utils.ParseMultipart(w, r, h.maxUploadBytes); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	image, _, err := h.readImages(r)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	description, err := h.editor.Describe(ctx, image)
	if err != nil {
		h.logger.Error("describe failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, DescribeResponse{Description: description}); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// HandleSuggestions handles POST /api/v1/suggestions/{kind}
func (h *GenerationHandler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	kind, err := editing.ParseSuggestionKind(chi.URLParam(r, "kind"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.ParseMultipart(w, r, h.maxUploadBytes); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	image, source, err := h.readImages(r)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	suggestions, err := h.editor.Suggest(ctx, kind, image, source)
	if err != nil {
		h.logger.Error("suggestions failed",
			zap.String("request_id", requestID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, SuggestionsResponse{Kind: string(kind), Suggestions: suggestions}); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// readImages returns the "image" part and, when uploaded, the "source" part.
// A missing image is left empty for the editing service to reject.
func (h *GenerationHandler) readImages(r *http.Request) (providers.Image, *providers.Image, error) {
	var image providers.Image

	data, mimeType, ok, err := utils.FormFile(r, "image")
	if err != nil {
		return image, nil, err
	}
	if ok {
		image = providers.Image{Data: data, MIMEType: mimeType}
	}

	data, mimeType, ok, err = utils.FormFile(r, "source")
	if err != nil || !ok {
		return image, nil, err
	}
	return image, &providers.Image{Data: data, MIMEType: mimeType}, nil
}

func parseEditForm(r *http.Request) (*editForm, error) {
	form := &editForm{
		Prompt: strings.TrimSpace(r.FormValue("prompt")),
		Style:  strings.TrimSpace(r.FormValue("style")),
	}

	for field, dst := range map[string]**int{"x": &form.X, "y": &form.Y} {
		raw := strings.TrimSpace(r.FormValue(field))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &utils.ValidationError{
				Message: "Validation failed",
				Fields:  map[string]string{field: field + " must be an integer"},
			}
		}
		*dst = &v
	}

	if err := utils.ValidateStruct(form); err != nil {
		return nil, err
	}
	return form, nil
}

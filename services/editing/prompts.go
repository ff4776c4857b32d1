package editing

import (
	"strings"
	"text/template"
)

// promptData is what the feature templates can reference
type promptData struct {
	Prompt string
	X, Y   int
}

const identityPolicy = `Safety and ethics:
- Requests to adjust skin tone (a tan, darker or lighter skin) are ordinary photo enhancements and must be fulfilled.
- Refuse any request to change a person's race or ethnicity. When a request is ambiguous, leave racial characteristics unchanged.`

var featureTemplates = map[Feature]*template.Template{
	FeatureRestore: parse("restore", `You are a professional photo restoration specialist. Restore the entire photograph so it looks as if it were taken with a modern, high-quality camera.

Restoration guidelines:
- Work across the whole image, not only on local areas.
- Remove noise, grain, dust, scratches, stains and compression artifacts.
- Rebuild blurred, damaged or missing areas with natural, realistic detail.
- Correct exposure and lighting, then colorize with vibrant, natural and consistent tones.
- Keep every face, body proportion and period detail exactly as it was. Never change who a person is.
{{- if .Prompt}}

Notes about the subjects: "{{.Prompt}}"
{{- end}}

Output: return ONLY the restored image, no text.`),

	FeatureEdit: parse("edit", `You are an expert photo editor. Make a natural, localized edit to the image.
User request: "{{.Prompt}}"
Edit location: the area around pixel (x: {{.X}}, y: {{.Y}}).

Editing guidelines:
- The edit must be photorealistic and blend with its surroundings.
- Everything outside the edit area must stay identical to the original.

`+identityPolicy+`

Output: return ONLY the edited image, no text.`),

	FeatureFilter: parse("filter", `You are an expert photo editor. Apply a stylistic filter to the whole image without changing its composition or content.
Filter request: "{{.Prompt}}"

Safety and ethics:
- A filter may shift colors but must never change a person's race or ethnicity.
- Refuse filters that explicitly ask for such a change.

Output: return ONLY the filtered image, no text.`),

	FeatureAdjust: parse("adjust", `You are an expert photo editor. Apply a natural, global adjustment to the whole image.
User request: "{{.Prompt}}"

Editing guidelines:
- Apply the adjustment across the entire image.
- The result must be photorealistic.

`+identityPolicy+`

Output: return ONLY the adjusted image, no text.`),

	FeatureFreeEdit: parse("free_edit", `You are an expert photo editor. Edit the image as the user asks, keeping the result photorealistic.
User request: "{{.Prompt}}"

Editing guidelines:
- Apply the change to the entire image unless the request says otherwise.
- Do not produce cartoons or drawings unless explicitly asked.

`+identityPolicy+`

Output: return ONLY the edited image, no text.`),

	FeatureMemorial: parse("memorial", `You are a respectful photo editor who prepares formal memorial portraits. Turn the image into a dignified, high-quality portrait suitable for a memorial service.

Guidelines:
- If several people appear, keep only the main subject, framed head-and-shoulders or chest-up.
- A slightly turned head may be made more frontal, but the person must remain perfectly recognizable.
- Preserve the face, its structure and the person's ethnicity exactly.
- Fully restore the photo: sharpen, fix color and exposure, remove scratches, stains, tears and noise.
- Replace the background with a simple, neutral one. A light grey-white with a subtle vertical gradient is the default.
- Dress the subject in formal, respectful attire unless the request says otherwise.

User request: "{{if .Prompt}}{{.Prompt}}{{else}}Create a formal memorial portrait{{end}}"

Output: return ONLY the portrait image, no text.`),

	FeatureComposite: parse("composite", `You are an expert photo editor. Blend content from a second "source" image into a first "base" image as instructed. The result must be photorealistic.

User instructions: "{{.Prompt}}"

Image roles:
- The first image is the base: the scene everything ends up in.
- The second image is the source: the person, object or element to integrate.

Output: return ONLY the composited image, no text.`),

	FeatureRetouch: parse("retouch", `You are a professional photo retoucher. Retouch the image as the user asks.

User request: "{{.Prompt}}"

Retouching guidelines:
- Focus on blemish removal, skin smoothing and subtle feature enhancement.
- Keep a natural look and avoid an over-processed, plastic finish.
- Preserve the person's features and identity.

Output: return ONLY the retouched image, no text.`),
}

const describePrompt = `You are an expert photo analyst. Look at this possibly damaged photograph and write a short phrase that would guide a restoration tool. Describe the original scene to restore, not the damage: the main subjects, their approximate age and ethnicity when clear, clothing, pose and setting, and any detail worth preserving.

Answer with the phrase only, for example: Two young soldiers in their 20s, wearing short-sleeved shirts, standing for a portrait.`

const suggestionsFormat = `
Output requirements:
- Return ONLY a JSON object with a single key "suggestions" holding an array of 3 strings.
- Each string is a direct, imperative instruction with no explanation and no surrounding quotes.

Example: {"suggestions": ["First instruction.", "Second instruction.", "Third instruction."]}`

var suggestionPrompts = map[SuggestionKind]string{
	SuggestCreative: `You are a photo editor and creative director. Study the image and propose 3 distinct edits, one from each direction:
1. An artistic style (film emulation, period look, genre styling).
2. A mood or atmosphere change (lighting, weather, time of day).
3. A color or technical improvement (grading, exposure, contrast).
Use precise photography vocabulary.` + suggestionsFormat,

	SuggestComposite: `You are a photo compositing specialist. The first image is the base scene and the second is the source element. Considering lighting, perspective and scale in both, propose 3 precise instructions for combining them photorealistically, mentioning shadows and light matching.` + suggestionsFormat,

	SuggestFreeEdit: `You are a creative assistant. Study the image and propose 3 bold global edits that transform its mood, style or content, such as "Change the season to a snowy winter landscape" or "Turn the photo into a detailed oil painting".` + suggestionsFormat,

	SuggestMemorial: `You are a respectful, culturally aware assistant. Look at the main person in the image and propose 3 short instructions for a formal memorial portrait: one about formal clothing, one about a suitable plain background, one about restoration or framing.` + suggestionsFormat,

	SuggestRetouch: `You are a high-end portrait and commercial retoucher. Find 3 concrete retouching tasks that would improve this image: distracting objects to remove, skin work that keeps natural texture, dust or artifact cleanup, background cleanup or perspective correction.` + suggestionsFormat,
}

// retouchFallback is offered when the model's retouch suggestions cannot be
// parsed
var retouchFallback = []string{
	"Remove distracting background elements while preserving edge detail",
	"Apply professional skin retouching while maintaining natural texture",
	"Clean up dust spots and technical imperfections throughout the image",
}

func parse(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=error").Parse(text))
}

func renderPrompt(feature Feature, data promptData) (string, error) {
	tmpl, ok := featureTemplates[feature]
	if !ok {
		return "", errUnknownFeature(string(feature))
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

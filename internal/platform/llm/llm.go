package llm

import "context"

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderDalle     = "dalle"
	ProviderReplicate = "replicate"
)

// ImageInput is one image attached to a multimodal prompt.
type ImageInput struct {
	// https://... or data:image/...;base64,...
	ImageURL string
	Detail   string // "low" | "high"
	// Raw bytes for providers that take inline data.
	Bytes    []byte
	MimeType string
}

type ImageRequest struct {
	Prompt string
	Size   string
	// Optional reference photo for providers that condition on an image.
	Reference     []byte
	ReferenceMime string
}

type ImageGeneration struct {
	Bytes         []byte
	MimeType      string
	RevisedPrompt string
	Provider      string
}

// TextGenerator produces story text.
type TextGenerator interface {
	GenerateText(ctx context.Context, system, user string) (string, error)
	// GenerateJSON asks for output matching schema and returns the raw JSON text.
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema any) (string, error)
}

// VisionDescriber turns a photo into a text description.
type VisionDescriber interface {
	Name() string
	GenerateTextWithImages(ctx context.Context, system, user string, images []ImageInput) (string, error)
}

type ImageGenerator interface {
	Name() string
	GenerateImage(ctx context.Context, req ImageRequest) (ImageGeneration, error)
}

package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/yungbote/storybook-backend/internal/platform/ctxutil"
	"github.com/yungbote/storybook-backend/internal/platform/httpx"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

const anthropicCompatBaseURL = "https://api.anthropic.com/v1/"

type OpenAIConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	ImageModel  string
	ImageSize   string
	Temperature float64
	MaxTokens   int64
	MaxRetries  int
	Timeout     time.Duration
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
// Anthropic is reached through its OpenAI SDK compatibility layer.
type OpenAIClient struct {
	log    *logger.Logger
	client openai.Client
	cfg    OpenAIConfig
	http   *http.Client
}

func NewOpenAIClient(log *logger.Logger, cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing api key for %s", cfg.Provider)
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Provider == ProviderAnthropic && cfg.BaseURL == "" {
		cfg.BaseURL = anthropicCompatBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "dall-e-3"
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = "1024x1024"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		log:    log.With("client", "OpenAIClient", "provider", cfg.Provider),
		client: openai.NewClient(opts...),
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *OpenAIClient) Name() string { return c.cfg.Provider }

func systemMessage(s string) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfSystem: &openai.ChatCompletionSystemMessageParam{
			Content: openai.ChatCompletionSystemMessageParamContentUnion{
				OfString: param.Opt[string]{Value: s},
			},
		},
	}
}

func userMessage(s string) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: param.Opt[string]{Value: s},
			},
		},
	}
}

func (c *OpenAIClient) baseParams(system string, user openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:               c.cfg.Model,
		Messages:            []openai.ChatCompletionMessageParamUnion{systemMessage(system), user},
		MaxCompletionTokens: openai.Int(c.cfg.MaxTokens),
		Temperature:         openai.Float(c.cfg.Temperature),
	}
}

func (c *OpenAIClient) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	ctx = ctxutil.Default(ctx)
	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", c.cfg.Provider, wrapStatus(err))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty completion content")
	}
	c.log.Debug("chat completion",
		"model", params.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return content, nil
}

func (c *OpenAIClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, c.baseParams(system, userMessage(user)))
}

func (c *OpenAIClient) GenerateJSON(ctx context.Context, system, user, schemaName string, schema any) (string, error) {
	params := c.baseParams(system, userMessage(user))
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   schemaName,
				Schema: schema,
				Strict: openai.Bool(true),
			},
		},
	}
	return c.complete(ctx, params)
}

func (c *OpenAIClient) GenerateTextWithImages(ctx context.Context, system, user string, images []ImageInput) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		{OfText: &openai.ChatCompletionContentPartTextParam{Text: user}},
	}
	for _, img := range images {
		u := img.ImageURL
		if u == "" && len(img.Bytes) > 0 {
			u = DataURL(img.MimeType, img.Bytes)
		}
		if u == "" {
			continue
		}
		detail := img.Detail
		if detail == "" {
			detail = "low"
		}
		parts = append(parts, openai.ChatCompletionContentPartUnionParam{
			OfImageURL: &openai.ChatCompletionContentPartImageParam{
				ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: u, Detail: detail},
			},
		})
	}
	msg := openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
		},
	}
	return c.complete(ctx, c.baseParams(system, msg))
}

// GenerateImage calls the Images API (DALL·E). The prompt is sent as is.
func (c *OpenAIClient) GenerateImage(ctx context.Context, req ImageRequest) (ImageGeneration, error) {
	ctx = ctxutil.Default(ctx)
	size := req.Size
	if size == "" {
		size = c.cfg.ImageSize
	}
	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openai.ImageModel(c.cfg.ImageModel),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(size),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return ImageGeneration{}, fmt.Errorf("image generation: %w", wrapStatus(err))
	}
	if resp == nil || len(resp.Data) == 0 {
		return ImageGeneration{}, errors.New("image generation returned no data")
	}
	item := resp.Data[0]
	out := ImageGeneration{RevisedPrompt: item.RevisedPrompt, Provider: ProviderDalle, MimeType: "image/png"}
	if b64 := strings.TrimSpace(item.B64JSON); b64 != "" {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return ImageGeneration{}, fmt.Errorf("decode image: %w", err)
		}
		out.Bytes = raw
		return out, nil
	}
	if item.URL == "" {
		return ImageGeneration{}, errors.New("image generation returned neither bytes nor url")
	}
	raw, mime, err := httpx.Download(ctx, c.http, item.URL, 20<<20)
	if err != nil {
		return ImageGeneration{}, err
	}
	out.Bytes = raw
	if mime != "" {
		out.MimeType = mime
	}
	return out, nil
}

// dalleProvider exposes the image side of an OpenAIClient under the "dalle" name.
type dalleProvider struct{ *OpenAIClient }

func (dalleProvider) Name() string { return ProviderDalle }

func (c *OpenAIClient) AsImageGenerator() ImageGenerator { return dalleProvider{c} }

func wrapStatus(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &httpx.StatusError{Status: apiErr.StatusCode, Body: apiErr.Message, Cause: err}
	}
	return err
}

func DataURL(mime string, b []byte) string {
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
}

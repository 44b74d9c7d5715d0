package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/yungbote/storybook-backend/internal/platform/ctxutil"
	"github.com/yungbote/storybook-backend/internal/platform/httpx"
	"github.com/yungbote/storybook-backend/internal/platform/llm"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

type Config struct {
	APIKey      string
	TextModel   string
	ImageModel  string
	AspectRatio string
	MaxRetries  int
	RetryDelay  time.Duration
}

// Client wraps the Gemini API for photo descriptions and illustrations.
type Client struct {
	log   *logger.Logger
	genai *genai.Client
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing GEMINI_API_KEY")
	}
	if cfg.TextModel == "" {
		cfg.TextModel = "gemini-2.5-flash"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "gemini-2.5-flash-image"
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = "1:1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &Client{
		log:   log.With("client", "GeminiClient"),
		genai: gc,
		cfg:   cfg,
		sleep: httpx.Sleep,
	}, nil
}

func (c *Client) Name() string { return llm.ProviderGemini }

func (c *Client) GenerateTextWithImages(ctx context.Context, system, user string, images []llm.ImageInput) (string, error) {
	ctx = ctxutil.Default(ctx)
	parts := []*genai.Part{genai.NewPartFromText(user)}
	for _, img := range images {
		if len(img.Bytes) == 0 {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(img.Bytes, img.MimeType))
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	var text string
	err := c.withRetry(ctx, "describe", func() error {
		res, err := c.genai.Models.GenerateContent(ctx, c.cfg.TextModel, []*genai.Content{{Role: genai.RoleUser, Parts: parts}}, cfg)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(res.Text())
		if text == "" {
			return errors.New("empty gemini response")
		}
		return nil
	})
	return text, err
}

// GenerateImage asks the image model for one illustration. A reference photo,
// when present, is sent as an inline part so the character stays recognizable.
func (c *Client) GenerateImage(ctx context.Context, req llm.ImageRequest) (llm.ImageGeneration, error) {
	ctx = ctxutil.Default(ctx)
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Reference) > 0 {
		mime := req.ReferenceMime
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(req.Reference, mime))
	}
	var out llm.ImageGeneration
	err := c.withRetry(ctx, "image", func() error {
		res, err := c.genai.Models.GenerateContent(
			ctx,
			c.cfg.ImageModel,
			[]*genai.Content{{Role: genai.RoleUser, Parts: parts}},
			&genai.GenerateContentConfig{
				ImageConfig: &genai.ImageConfig{AspectRatio: c.cfg.AspectRatio},
			},
		)
		if err != nil {
			return err
		}
		img, ok := firstInlineImage(res)
		if !ok {
			return errors.New("no image data in response")
		}
		out = img
		return nil
	})
	return out, err
}

func firstInlineImage(res *genai.GenerateContentResponse) (llm.ImageGeneration, bool) {
	if res == nil {
		return llm.ImageGeneration{}, false
	}
	for _, cand := range res.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return llm.ImageGeneration{Bytes: part.InlineData.Data, MimeType: mime, Provider: llm.ProviderGemini}, true
			}
		}
	}
	return llm.ImageGeneration{}, false
}

// withRetry retries rate limited calls up to MaxRetries times, RetryDelay apart.
// Other errors return immediately.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsRateLimited(err) || attempt == c.cfg.MaxRetries {
			break
		}
		c.log.Warn("gemini rate limited; retrying", "op", op, "attempt", attempt, "error", err)
		if sErr := c.sleep(ctx, c.cfg.RetryDelay); sErr != nil {
			return sErr
		}
	}
	return fmt.Errorf("gemini %s: %w", op, err)
}

func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") || strings.Contains(s, "rate limit") || strings.Contains(s, "quota")
}

package app

import (
	"context"
	"fmt"

	"github.com/yungbote/storybook-backend/internal/platform/cache"
	"github.com/yungbote/storybook-backend/internal/platform/gcp"
	"github.com/yungbote/storybook-backend/internal/platform/gemini"
	"github.com/yungbote/storybook-backend/internal/platform/llm"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
	"github.com/yungbote/storybook-backend/internal/platform/razorpay"
	"github.com/yungbote/storybook-backend/internal/platform/replicate"
	"github.com/yungbote/storybook-backend/internal/realtime/bus"
)

// Clients holds the vendor clients. Every field except SSEBus and Cache may
// be nil when its credentials are not configured.
type Clients struct {
	SSEBus    bus.Bus
	Cache     cache.Cache
	OpenAI    *llm.OpenAIClient
	Anthropic *llm.OpenAIClient
	Gemini    *gemini.Client
	Replicate *replicate.Client
	Razorpay  razorpay.Gateway
	Bucket    gcp.BucketService
	Precheck  gcp.FaceDetector

	closers []func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis
	if cfg.RedisAddr != "" {
		b, err := bus.NewRedisBus(log, bus.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			return out, fmt.Errorf("init redis SSE bus: %w", err)
		}
		out.SSEBus = b
		out.closers = append(out.closers, b.Close)
	} else {
		out.SSEBus = bus.NewLocalBus()
	}

	// Cache
	switch cfg.CacheBackend {
	case "redis":
		rc, err := cache.NewRedis(log, cfg.RedisAddr, cfg.RedisCachePrefix)
		if err != nil {
			return out, fmt.Errorf("init redis cache: %w", err)
		}
		out.Cache = rc
		out.closers = append(out.closers, rc.Close)
	default:
		out.Cache = cache.NewMemory()
	}

	// LLM providers
	if cfg.OpenAIAPIKey != "" {
		c, err := llm.NewOpenAIClient(log, llm.OpenAIConfig{
			Provider:   llm.ProviderOpenAI,
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			ImageModel: cfg.OpenAIImageModel,
			MaxRetries: cfg.LLMMaxRetries,
			Timeout:    cfg.LLMTimeout,
		})
		if err != nil {
			return out, fmt.Errorf("init openai client: %w", err)
		}
		out.OpenAI = c
	} else {
		log.Warn("OPENAI_API_KEY is not set; story generation and DALL-E are unavailable")
	}
	if cfg.AnthropicAPIKey != "" {
		c, err := llm.NewOpenAIClient(log, llm.OpenAIConfig{
			Provider:   llm.ProviderAnthropic,
			APIKey:     cfg.AnthropicAPIKey,
			Model:      cfg.AnthropicModel,
			MaxRetries: cfg.LLMMaxRetries,
			Timeout:    cfg.LLMTimeout,
		})
		if err != nil {
			return out, fmt.Errorf("init anthropic client: %w", err)
		}
		out.Anthropic = c
	}
	if cfg.GeminiAPIKey != "" {
		c, err := gemini.New(ctx, log, gemini.Config{
			APIKey:     cfg.GeminiAPIKey,
			TextModel:  cfg.GeminiTextModel,
			ImageModel: cfg.GeminiImageModel,
		})
		if err != nil {
			return out, fmt.Errorf("init gemini client: %w", err)
		}
		out.Gemini = c
	}
	if cfg.ReplicateAPIToken != "" {
		c, err := replicate.New(log, replicate.Config{
			APIToken: cfg.ReplicateAPIToken,
			Model:    cfg.ReplicateModel,
		})
		if err != nil {
			return out, fmt.Errorf("init replicate client: %w", err)
		}
		out.Replicate = c
	}

	// Payments
	if cfg.RazorpayKeyID != "" {
		g, err := razorpay.NewGateway(log, cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
		if err != nil {
			return out, fmt.Errorf("init razorpay gateway: %w", err)
		}
		out.Razorpay = g
	} else {
		log.Warn("RAZORPAY_KEY_ID is not set; paid upgrades and orders are unavailable")
	}

	// Gcp
	bucket, err := resolveBucketService(log, cfg)
	if err != nil {
		return out, fmt.Errorf("init bucket client: %w", err)
	}
	if bucket != nil {
		out.Bucket = bucket
	}
	if cfg.VisionPrecheck {
		fd, err := gcp.NewFaceDetector(log)
		if err != nil {
			return out, fmt.Errorf("init vision client: %w", err)
		}
		out.Precheck = fd
		out.closers = append(out.closers, fd.Close)
	}

	return out, nil
}

// Describers lists the configured photo describers in preference order.
func (c Clients) Describers() []llm.VisionDescriber {
	var out []llm.VisionDescriber
	if c.OpenAI != nil {
		out = append(out, c.OpenAI)
	}
	if c.Anthropic != nil {
		out = append(out, c.Anthropic)
	}
	if c.Gemini != nil {
		out = append(out, c.Gemini)
	}
	return out
}

func (c Clients) ImageGenerators() []llm.ImageGenerator {
	var out []llm.ImageGenerator
	if c.OpenAI != nil {
		out = append(out, c.OpenAI.AsImageGenerator())
	}
	if c.Replicate != nil {
		out = append(out, c.Replicate)
	}
	if c.Gemini != nil {
		out = append(out, c.Gemini)
	}
	return out
}

// TextGenerator is nil when OpenAI is not configured.
func (c Clients) TextGenerator() llm.TextGenerator {
	if c.OpenAI == nil {
		return nil
	}
	return c.OpenAI
}

func (c Clients) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

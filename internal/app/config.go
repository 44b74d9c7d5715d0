package app

import (
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/yungbote/storybook-backend/internal/platform/envutil"
	"github.com/yungbote/storybook-backend/internal/platform/llm"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

type Config struct {
	Port        string
	ServiceName string
	Production  bool

	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisChannel     string
	RedisCachePrefix string
	CacheBackend     string
	CacheTTL         time.Duration

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIImageModel  string
	AnthropicAPIKey   string
	AnthropicModel    string
	GeminiAPIKey      string
	GeminiTextModel   string
	GeminiImageModel  string
	ReplicateAPIToken string
	ReplicateModel    string
	LLMTimeout        time.Duration
	LLMMaxRetries     int

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	StoryBucketName     string
	ObjectStorageMode   string
	StorageEmulatorHost string
	VisionPrecheck      bool

	ImageProvider  string
	ImageCallDelay time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	WorkerConcurrency int
	WorkerMaxAttempts int
	WorkerPoll        time.Duration

	TracingEnabled bool
	CORSOrigins    []string
}

func LoadConfig(log *logger.Logger) Config {
	mode := strings.ToLower(envutil.String("LOG_MODE", "development"))
	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "storybook-backend"),
		Production:  mode == "prod" || mode == "production",

		JWTSecretKey:    envutil.String("JWT_SECRET_KEY", ""),
		AccessTokenTTL:  envutil.Seconds("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL: envutil.Seconds("REFRESH_TOKEN_TTL", 30*24*time.Hour),

		RedisAddr:        envutil.String("REDIS_ADDR", ""),
		RedisPassword:    envutil.String("REDIS_PASSWORD", ""),
		RedisDB:          envutil.Int("REDIS_DB", 0),
		RedisChannel:     envutil.String("REDIS_CHANNEL", "storybook:sse"),
		RedisCachePrefix: envutil.String("REDIS_CACHE_PREFIX", "storybook:cache:"),
		CacheBackend:     strings.ToLower(envutil.String("CACHE_BACKEND", "memory")),
		CacheTTL:         envutil.Seconds("CACHE_TTL_SECONDS", time.Hour),

		OpenAIAPIKey:      envutil.String("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     envutil.String("OPENAI_BASE_URL", ""),
		OpenAIModel:       envutil.String("OPENAI_MODEL", "gpt-4o"),
		OpenAIImageModel:  envutil.String("OPENAI_IMAGE_MODEL", "dall-e-3"),
		AnthropicAPIKey:   envutil.String("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    envutil.String("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		GeminiAPIKey:      envutil.String("GEMINI_API_KEY", ""),
		GeminiTextModel:   envutil.String("GEMINI_TEXT_MODEL", ""),
		GeminiImageModel:  envutil.String("GEMINI_IMAGE_MODEL", ""),
		ReplicateAPIToken: envutil.String("REPLICATE_API_TOKEN", ""),
		ReplicateModel:    envutil.String("REPLICATE_MODEL", ""),
		LLMTimeout:        envutil.Seconds("LLM_TIMEOUT_SECONDS", 120*time.Second),
		LLMMaxRetries:     envutil.Int("LLM_MAX_RETRIES", 2),

		RazorpayKeyID:         envutil.String("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret:     envutil.String("RAZORPAY_KEY_SECRET", ""),
		RazorpayWebhookSecret: envutil.String("RAZORPAY_WEBHOOK_SECRET", ""),

		StoryBucketName:     envutil.String("STORY_GCS_BUCKET_NAME", ""),
		ObjectStorageMode:   envutil.String("OBJECT_STORAGE_MODE", ""),
		StorageEmulatorHost: envutil.String("STORAGE_EMULATOR_HOST", ""),
		VisionPrecheck:      envutil.Bool("VISION_PRECHECK_ENABLED", false),

		ImageProvider:  strings.ToLower(envutil.String("IMAGE_PROVIDER", llm.ProviderDalle)),
		ImageCallDelay: envutil.Millis("IMAGE_CALL_DELAY_MS", time.Second),

		RateLimitRPS:   envutil.Float("RATE_LIMIT_RPS", 0.5),
		RateLimitBurst: envutil.Int("RATE_LIMIT_BURST", 5),

		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 2),
		WorkerMaxAttempts: envutil.Int("WORKER_MAX_ATTEMPTS", 3),
		WorkerPoll:        envutil.Millis("WORKER_POLL_MS", time.Second),

		TracingEnabled: envutil.Bool("OTEL_ENABLED", false),
		CORSOrigins:    envutil.CSV("CORS_ALLOWED_ORIGINS", nil),
	}

	if cfg.JWTSecretKey == "" {
		cfg.JWTSecretKey = "defaultsecret"
		if cfg.Production {
			log.Error("JWT_SECRET_KEY is not set; refusing the default secret in production")
		} else {
			log.Warn("JWT_SECRET_KEY is not set; using the development default")
		}
	}
	switch cfg.CacheBackend {
	case "memory", "redis":
	default:
		log.Warn("Unknown CACHE_BACKEND; using memory", "cache_backend", cfg.CacheBackend)
		cfg.CacheBackend = "memory"
	}
	switch cfg.ImageProvider {
	case llm.ProviderDalle, llm.ProviderReplicate, llm.ProviderGemini:
	default:
		log.Warn("Unknown IMAGE_PROVIDER; using dalle", "image_provider", cfg.ImageProvider)
		cfg.ImageProvider = llm.ProviderDalle
	}
	return cfg
}

// Validate rejects settings the process must not start with.
func (c Config) Validate() error {
	if c.Production && c.JWTSecretKey == "defaultsecret" {
		return errMissingJWTSecret
	}
	return nil
}

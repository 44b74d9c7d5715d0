package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/storybook-backend/internal/http/handlers"
	httpMW "github.com/yungbote/storybook-backend/internal/http/middleware"
	"github.com/yungbote/storybook-backend/internal/http/response"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	TracingEnabled bool
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	AuthMiddleware *httpMW.AuthMiddleware

	AuthHandler         *httpH.AuthHandler
	UserHandler         *httpH.UserHandler
	CatalogHandler      *httpH.CatalogHandler
	SubscriptionHandler *httpH.SubscriptionHandler
	PhotoHandler        *httpH.PhotoHandler
	StoryHandler        *httpH.StoryHandler
	ImageHandler        *httpH.ImageHandler
	PaymentHandler      *httpH.PaymentHandler
	JobHandler          *httpH.JobHandler
	RealtimeHandler     *httpH.RealtimeHandler
	HealthHandler       *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	response.RegisterJSONTagNames()

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		name := cfg.ServiceName
		if name == "" {
			name = "storybook-api"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	// AI endpoints share one limiter so a client cannot spread load across them.
	aiLimit := httpMW.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/register", cfg.AuthHandler.Register)
			api.POST("/login", cfg.AuthHandler.Login)
			api.POST("/refresh", cfg.AuthHandler.Refresh)
		}
		if cfg.CatalogHandler != nil {
			api.GET("/themes", cfg.CatalogHandler.ListThemes)
		}
		if cfg.SubscriptionHandler != nil {
			api.GET("/subscription/plans", cfg.SubscriptionHandler.Plans)
		}
		// Razorpay authenticates with the body signature
		if cfg.PaymentHandler != nil {
			api.POST("/webhooks/razorpay", cfg.PaymentHandler.Webhook)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.AuthHandler != nil {
			protected.POST("/logout", cfg.AuthHandler.Logout)
		}

		if cfg.UserHandler != nil {
			protected.GET("/me", cfg.UserHandler.GetMe)
			protected.PATCH("/me", cfg.UserHandler.UpdateMe)
		}

		if cfg.SubscriptionHandler != nil {
			protected.GET("/subscription", cfg.SubscriptionHandler.Status)
			protected.POST("/subscription/upgrade", cfg.SubscriptionHandler.Upgrade)
			protected.POST("/subscription/cancel", cfg.SubscriptionHandler.Cancel)
		}

		if cfg.PhotoHandler != nil {
			protected.POST("/photos/analyze", aiLimit, cfg.PhotoHandler.Analyze)
		}

		if cfg.StoryHandler != nil {
			protected.POST("/stories", aiLimit, cfg.StoryHandler.Create)
			protected.GET("/stories", cfg.StoryHandler.List)
			protected.GET("/stories/:id", cfg.StoryHandler.Get)
			protected.DELETE("/stories/:id", cfg.StoryHandler.Delete)
			protected.PATCH("/stories/:id/pages/:index", cfg.StoryHandler.UpdatePage)
			protected.POST("/stories/:id/illustrations", cfg.StoryHandler.RequestIllustrations)
			protected.POST("/stories/:id/export", cfg.StoryHandler.Export)
		}

		if cfg.ImageHandler != nil {
			protected.POST("/images/generate", aiLimit, cfg.ImageHandler.Generate)
		}

		if cfg.CatalogHandler != nil {
			protected.GET("/prompts/templates", cfg.CatalogHandler.TemplateStats)
			protected.POST("/prompts/templates/:id/feedback", cfg.CatalogHandler.TemplateFeedback)
		}

		if cfg.PaymentHandler != nil {
			protected.POST("/payments/orders", cfg.PaymentHandler.CreateOrder)
			protected.POST("/payments/verify", cfg.PaymentHandler.Verify)
			protected.GET("/orders", cfg.PaymentHandler.ListOrders)
		}

		if cfg.JobHandler != nil {
			protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
			protected.GET("/stories/:id/job", cfg.JobHandler.LatestForStory)
		}

		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}
	}

	return r
}

package app

import (
	httpserver "github.com/yungbote/storybook-backend/internal/http"
	httpH "github.com/yungbote/storybook-backend/internal/http/handlers"
	httpMW "github.com/yungbote/storybook-backend/internal/http/middleware"
	"github.com/yungbote/storybook-backend/internal/platform/cache"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
	"github.com/yungbote/storybook-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health       *httpH.HealthHandler
	Auth         *httpH.AuthHandler
	User         *httpH.UserHandler
	Catalog      *httpH.CatalogHandler
	Subscription *httpH.SubscriptionHandler
	Photo        *httpH.PhotoHandler
	Story        *httpH.StoryHandler
	Image        *httpH.ImageHandler
	Payment      *httpH.PaymentHandler
	Job          *httpH.JobHandler
	Realtime     *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, cfg Config, services Services, c cache.Cache, sseHub *realtime.SSEHub, deps map[string]httpH.Pinger) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:       httpH.NewHealthHandler(deps),
		Auth:         httpH.NewAuthHandler(services.Auth, cfg.Production),
		User:         httpH.NewUserHandler(services.User),
		Catalog:      httpH.NewCatalogHandler(c, cfg.CacheTTL, services.Optimizer),
		Subscription: httpH.NewSubscriptionHandler(services.Subscription),
		Photo:        httpH.NewPhotoHandler(services.Photo),
		Story:        httpH.NewStoryHandler(services.Story, services.Export),
		Image:        httpH.NewImageHandler(services.Illustration),
		Payment:      httpH.NewPaymentHandler(log, services.Payment),
		Job:          httpH.NewJobHandler(services.Jobs),
		Realtime:     httpH.NewRealtimeHandler(log, sseHub),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *httpserver.Server {
	return httpserver.NewServer(httpserver.RouterConfig{
		Log:            log,
		ServiceName:    cfg.ServiceName,
		TracingEnabled: cfg.TracingEnabled,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,

		AuthMiddleware: middleware.Auth,

		AuthHandler:         handlers.Auth,
		UserHandler:         handlers.User,
		CatalogHandler:      handlers.Catalog,
		SubscriptionHandler: handlers.Subscription,
		PhotoHandler:        handlers.Photo,
		StoryHandler:        handlers.Story,
		ImageHandler:        handlers.Image,
		PaymentHandler:      handlers.Payment,
		JobHandler:          handlers.Job,
		RealtimeHandler:     handlers.Realtime,
		HealthHandler:       handlers.Health,
	})
}

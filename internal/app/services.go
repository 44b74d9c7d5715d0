package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/storybook-backend/internal/jobs/pipeline/story_export"
	"github.com/yungbote/storybook-backend/internal/jobs/pipeline/story_illustrate"
	jobruntime "github.com/yungbote/storybook-backend/internal/jobs/runtime"
	"github.com/yungbote/storybook-backend/internal/jobs/worker"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
	"github.com/yungbote/storybook-backend/internal/prompts"
	"github.com/yungbote/storybook-backend/internal/services"
)

type Services struct {
	Auth         services.AuthService
	User         services.UserService
	Subscription services.SubscriptionService
	Payment      services.PaymentService
	Photo        services.PhotoAnalysisService
	Story        services.StoryService
	Illustration services.IllustrationService
	Export       services.ExportService
	Jobs         services.JobService
	Optimizer    *prompts.Optimizer

	JobWorker *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	// Every instance's forwarder feeds its own hub, this one included.
	emitter := &services.BusEmitter{Bus: clients.SSEBus, Log: log}
	notifier := services.NewNotifier(emitter)

	optimizer := prompts.NewOptimizer(prompts.Templates())
	builder := prompts.NewBuilder(optimizer)

	checkout := services.NewOrderCheckout(log, repos.Order, clients.Razorpay)
	authService := services.NewAuthService(db, log, repos.User, repos.UserToken, cfg.JWTSecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	subscriptionService := services.NewSubscriptionService(db, log, repos.User, checkout)
	userService := services.NewUserService(log, repos.User, subscriptionService)
	jobService := services.NewJobService(db, log, repos.JobRun, notifier)

	paymentService := services.NewPaymentService(
		db, log,
		repos.User,
		repos.Order,
		repos.Story,
		checkout,
		subscriptionService,
		jobService,
		cfg.RazorpayKeySecret,
		cfg.RazorpayWebhookSecret,
	)
	photoService := services.NewPhotoAnalysisService(log, clients.Describers(), clients.Precheck, clients.Bucket, clients.Cache)
	storyService := services.NewStoryService(
		db, log,
		repos.Story,
		subscriptionService,
		jobService,
		clients.TextGenerator(),
		builder,
		clients.Bucket,
		notifier,
	)
	illustrationService := services.NewIllustrationService(
		log,
		repos.Story,
		clients.ImageGenerators(),
		clients.Bucket,
		notifier,
		services.IllustrationConfig{Provider: cfg.ImageProvider, Delay: cfg.ImageCallDelay},
	)
	exportService := services.NewExportService(log, repos.Story, repos.Order, subscriptionService, clients.Bucket, notifier)

	jobRegistry := jobruntime.NewRegistry()
	if err := jobRegistry.Register(story_illustrate.New(log, repos.Story, illustrationService, notifier, cfg.WorkerMaxAttempts)); err != nil {
		return Services{}, fmt.Errorf("register %s: %w", "story_illustrate", err)
	}
	if err := jobRegistry.Register(story_export.New(log, exportService)); err != nil {
		return Services{}, fmt.Errorf("register %s: %w", "story_export", err)
	}
	jobWorker := worker.NewWorker(log, repos.JobRun, jobRegistry, notifier, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPoll,
		MaxAttempts:  cfg.WorkerMaxAttempts,
	})

	return Services{
		Auth:         authService,
		User:         userService,
		Subscription: subscriptionService,
		Payment:      paymentService,
		Photo:        photoService,
		Story:        storyService,
		Illustration: illustrationService,
		Export:       exportService,
		Jobs:         jobService,
		Optimizer:    optimizer,
		JobWorker:    jobWorker,
	}, nil
}

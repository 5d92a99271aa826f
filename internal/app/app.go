package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"daohub_backend/internal/auth"
	"daohub_backend/internal/cache"
	"daohub_backend/internal/config"
	"daohub_backend/internal/email"
	"daohub_backend/internal/events"
	"daohub_backend/internal/handlers"
	"daohub_backend/internal/logger"
	"daohub_backend/internal/metrics"
	"daohub_backend/internal/middleware"
	"daohub_backend/internal/queue"
	"daohub_backend/internal/ratelimit"
	"daohub_backend/internal/repositories"
	"daohub_backend/internal/routes"
	"daohub_backend/internal/services"
	"daohub_backend/internal/validator"
	"daohub_backend/internal/workers"
	"daohub_backend/pkg/apperrors"
	"daohub_backend/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// App собирает все зависимости процесса.
type App struct {
	cfg         *config.Config
	db          *gorm.DB
	cache       cache.Cache
	queue       *queue.Queue
	registry    *ws.Registry
	services    *services.ServiceContainer
	failures    repositories.DeliveryFailureRepository
	maintenance *workers.MaintenanceWorker
	consumer    *events.Consumer
	router      *gin.Engine
}

func Run() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("production")
		logger.Fatal("Failed to load config", "error", err)
	}
	logger.InitWithWriter(cfg.Server.Env, cfg.Server.LogLevel, os.Stdout)
	logger.Info("Logger initialized", "env", cfg.Server.Env)
	apperrors.Debug = cfg.Server.Env == "development"

	gormDB, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("Database unavailable", "error", err)
	}
	logger.Info("Database connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := New(cfg, gormDB)
	if err != nil {
		logger.Fatal("Failed to initialize application", "error", err)
	}
	if err := a.Start(ctx); err != nil {
		logger.Fatal("Failed to start background workers", "error", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("🚀 Server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server startup error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	a.Stop()
	logger.Info("Server stopped")
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormDB, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := repositories.AutoMigrate(gormDB); err != nil {
			return nil, err
		}
		logger.Info("Database migrated")
	}
	return gormDB, nil
}

// New wires repositories, services, the delivery queue and the HTTP router.
func New(cfg *config.Config, gormDB *gorm.DB) (*App, error) {
	a := &App{cfg: cfg, db: gormDB}

	c, err := newCache(cfg)
	if err != nil {
		return nil, err
	}
	a.cache = c

	notificationRepo := repositories.NewNotificationRepository(gormDB)
	userRepo := repositories.NewUserRepository(gormDB)
	membershipRepo := repositories.NewMembershipRepository(gormDB)
	a.failures = repositories.NewDeliveryFailureRepository(gormDB)

	// OnFailed is bound once the delivery service exists.
	var onFailed func(job queue.Job, err error)
	a.queue = queue.New(queue.Options{
		MaxAttempts:      cfg.Queue.MaxAttempts,
		Backoff:          cfg.Queue.Backoff(),
		MaxBackoff:       cfg.Queue.MaxBackoff(),
		HandlerTimeout:   cfg.Queue.HandlerTimeout(),
		PollInterval:     cfg.Queue.PollInterval(),
		RemoveOnComplete: cfg.Queue.RemoveOnComplete,
		Events: metrics.QueueEvents(queue.Events{
			OnFailed: func(job queue.Job, err error) {
				if onFailed != nil {
					onFailed(job, err)
				}
			},
		}),
	})

	a.registry = ws.NewRegistry()

	mailer, err := newEmailProvider(cfg.Email)
	if err != nil {
		return nil, err
	}
	templates := email.NewTemplateManager()
	if cfg.Email.TemplatesDir != "" {
		if err := templates.LoadTemplates(cfg.Email.TemplatesDir); err != nil {
			return nil, err
		}
	}

	notificationService := services.NewNotificationService(
		notificationRepo, userRepo, membershipRepo, a.cache, a.queue, a.registry,
		services.NotificationConfig{
			FeedMaxLength:     cfg.Feed.MaxLength,
			FeedTTL:           cfg.Feed.TTL(),
			FanoutConcurrency: cfg.Fanout.Concurrency,
		},
	)
	deliveryService := services.NewDeliveryService(
		notificationRepo, userRepo, a.failures, a.cache, a.registry, mailer, templates,
		services.DeliveryConfig{SendTimeout: cfg.Email.SendTimeout()},
	)
	onFailed = deliveryService.RecordFailure
	if err := deliveryService.Register(a.queue, cfg.Queue.Concurrency); err != nil {
		return nil, err
	}
	membershipService := services.NewMembershipService(membershipRepo, a.registry)

	a.services = &services.ServiceContainer{
		NotificationService: notificationService,
		DeliveryService:     deliveryService,
		MembershipService:   membershipService,
		EmailService:        mailer,
	}

	a.maintenance = workers.NewMaintenanceWorker(notificationService, a.queue, a.failures, workers.MaintenanceConfig{
		Schedule:         cfg.Workers.CleanupSchedule,
		CleanupBatch:     cfg.Workers.CleanupBatch,
		JobRetention:     time.Duration(cfg.Workers.JobRetentionHours) * time.Hour,
		FailureRetention: time.Duration(cfg.Workers.FailureRetentionD) * 24 * time.Hour,
	})

	if cfg.Kafka.Enabled {
		dispatcher := events.NewDispatcher(notificationService, membershipService, a.cache)
		a.consumer = events.NewConsumer(cfg.Kafka, dispatcher)
	}

	if err := metrics.Register(a.queue, a.registry); err != nil {
		return nil, err
	}

	a.router = a.setupRouter()
	return a, nil
}

func newCache(cfg *config.Config) (cache.Cache, error) {
	if cfg.Cache.Driver != "redis" {
		logger.Info("Cache initialized", "driver", "memory")
		return cache.NewMemoryCache(), nil
	}
	client := cache.NewRedisClient(cfg.Redis.Addrs, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Cluster)
	rc := cache.NewRedisCache(client, cfg.Redis.Prefix)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		// Кэш необязателен: операции деградируют до хранилища.
		logger.Warn("Redis unavailable at startup", "error", err)
	}
	logger.Info("Cache initialized", "driver", "redis", "addrs", cfg.Redis.Addrs)
	return rc, nil
}

func newEmailProvider(cfg config.EmailConfig) (email.Provider, error) {
	if !cfg.Enabled() {
		logger.Warn("SMTP is not configured, emails are logged only")
		return email.LogProvider{}, nil
	}
	provider := email.NewSMTPProvider(&email.SMTPConfig{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
		Timeout:   cfg.SendTimeout(),
	}, validator.New())
	if err := provider.Validate(); err != nil {
		return nil, err
	}
	return provider, nil
}

func (a *App) setupRouter() *gin.Engine {
	if a.cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(metrics.GinMiddleware())

	base := handlers.NewBaseHandler(validator.New())
	appHandlers := &handlers.AppHandlers{
		NotificationHandler: handlers.NewNotificationHandler(base, a.services.NotificationService),
		QueueHandler:        handlers.NewQueueHandler(base, a.queue, a.failures),
		HealthHandler:       handlers.NewHealthHandler(a.sqlDB(), a.cache),
	}

	wsHandler := ws.NewWebSocketHandler(a.registry, a.services.MembershipService, ws.ClientOptions{
		SendBuffer:     a.cfg.WebSocket.SendBuffer,
		PingPeriod:     a.cfg.WebSocket.PingPeriod(),
		MaxMessageSize: int64(a.cfg.WebSocket.MaxMessageSize),
	})

	tokens := auth.NewTokenManager(a.cfg.JWT.Secret, a.cfg.JWT.TTL())
	guards := routes.Guards{Auth: middleware.AuthMiddleware(tokens)}
	if a.cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(a.cache)
		guards.RateLimit = middleware.RateLimitMiddleware(limiter, "api", a.cfg.RateLimit.Window(), a.cfg.RateLimit.Max)
	}

	routes.RegisterRoutes(router, appHandlers, wsHandler, guards)
	return router
}

func (a *App) sqlDB() handlers.Pinger {
	sqlDB, err := a.db.DB()
	if err != nil {
		return nil
	}
	return sqlDB
}

// Start launches the queue workers, the maintenance schedule and the event consumer.
func (a *App) Start(ctx context.Context) error {
	a.queue.Start(ctx)
	if err := a.maintenance.Start(ctx); err != nil {
		return err
	}
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(ctx); err != nil {
				logger.WorkerLog("events", "consume", err)
			}
		}()
		logger.Info("Event consumer started", "topic", a.cfg.Kafka.Topic)
	}
	return nil
}

func (a *App) Stop() {
	a.maintenance.Stop()
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			logger.Warn("Event consumer close failed", "error", err)
		}
	}
	a.queue.Stop()
	if err := a.cache.Close(); err != nil {
		logger.Warn("Cache close failed", "error", err)
	}
	if err := a.services.EmailService.Close(); err != nil {
		logger.Warn("Email provider close failed", "error", err)
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

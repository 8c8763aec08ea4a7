package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/diagnosis/guest-feedback/pkg/cache"
	"github.com/diagnosis/guest-feedback/pkg/config"
	"github.com/diagnosis/guest-feedback/pkg/database"
	"github.com/diagnosis/guest-feedback/pkg/events"
	"github.com/diagnosis/guest-feedback/pkg/logger"
	"github.com/diagnosis/guest-feedback/pkg/mailer"
	mw "github.com/diagnosis/guest-feedback/pkg/middleware"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/handlers"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/repository"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/repository/memory"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/service"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Analytics cache and idempotency records
	var cacheStore cache.Store
	if cfg.Redis.URL != "" {
		rs, err := cache.NewRedisStore(ctx, cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		cacheStore = rs
	} else {
		logger.Warn("REDIS_URL not set, using in-process cache")
		cacheStore = cache.NewMemoryStore()
	}
	defer cacheStore.Close()
	analyticsCache := cache.NewVersioned(cacheStore, "analytics", cfg.Redis.CacheTTL)

	// Event bus
	var eventBus events.EventBus
	if cfg.NATS.URL != "" {
		nb, err := events.NewNATSEventBus(cfg.NATS.URL, "feedback")
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		eventBus = nb
	} else {
		logger.Warn("NATS_URL not set, events stay in process")
		eventBus = events.NewLocalEventBus()
	}
	defer eventBus.Close()

	mail := mailer.New(cfg.Email.DevMode, cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)

	// Initialize services
	tokenService := service.NewTokenService(store.Tokens, mail, eventBus, cfg)
	reviewService := service.NewReviewService(store.Reviews, store.Catalog, analyticsCache, eventBus)
	analyticsService := service.NewAnalyticsService(store.Analytics, store.Catalog, analyticsCache)
	reportService := service.NewReportService(store.Analytics, store.Catalog, analyticsCache)
	authService := service.NewAuthService(store.Users, cfg)

	if err := authService.BootstrapAdmin(ctx); err != nil {
		logger.Error("Failed to bootstrap admin", "error", err)
		os.Exit(1)
	}

	// Background work stops with ctx
	go tokenService.RunSweeper(ctx, cfg.Feedback.TokenSweepInterval)
	limiter := mw.NewIPRateLimiter(cfg.RateLimit.PublicPerMinute, cfg.RateLimit.PublicBurst, cfg.RateLimit.VisitorTTL)
	go limiter.Cleanup(ctx)

	h := handlers.New(tokenService, reviewService, analyticsService, reportService, authService, cfg)

	// Setup router
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("feedback"))
	r.Use(mw.Logging)
	r.Use(middleware.Recoverer)
	r.Use(mw.CORS(cfg.Server.AllowedOrigins))
	r.Use(mw.Health)
	h.Routes(r, limiter, cacheStore)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		logger.Info("Shutting down feedback service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Feedback service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting feedback service", "port", cfg.Server.Port, "store", cfg.Database.Driver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Feedback service error", "error", err)
		os.Exit(1)
	}
	<-drained
}

// openStore returns the repositories for the configured driver and a func
// releasing its resources.
func openStore(ctx context.Context, cfg *config.Config) (*repository.Store, func(), error) {
	if cfg.Database.Driver == "memory" {
		db := memory.New()
		db.Seed()
		logger.Warn("Using in-memory store, data is lost on restart")
		return db.Store(), func() {}, nil
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return repository.NewPostgresStore(pool), pool.Close, nil
}

// Package main is the entry point for the leadflow server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dinamicamotors/leadflow/internal/ai"
	"github.com/dinamicamotors/leadflow/internal/audit"
	"github.com/dinamicamotors/leadflow/internal/calendar"
	"github.com/dinamicamotors/leadflow/internal/clock"
	"github.com/dinamicamotors/leadflow/internal/config"
	"github.com/dinamicamotors/leadflow/internal/database"
	"github.com/dinamicamotors/leadflow/internal/handler"
	"github.com/dinamicamotors/leadflow/internal/logging"
	"github.com/dinamicamotors/leadflow/internal/metrics"
	"github.com/dinamicamotors/leadflow/internal/middleware"
	"github.com/dinamicamotors/leadflow/internal/notify"
	"github.com/dinamicamotors/leadflow/internal/ratelimit"
	"github.com/dinamicamotors/leadflow/internal/repository"
	"github.com/dinamicamotors/leadflow/internal/service"
	"github.com/dinamicamotors/leadflow/internal/shutdown"
	"github.com/dinamicamotors/leadflow/internal/whatsapp"
)

func main() {
	// Local development convenience; production sets real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := logging.New(&logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Server.Environment,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := appLogger.Zap()
	defer func() { _ = logger.Sync() }()

	logger.Info("starting leadflow server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Environment),
	)

	ctx := context.Background()
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	// Note: db.Close() is handled by shutdown coordinator

	migrator := database.NewMigrator(db.Pool, logger)
	if err := migrator.MigrateFromFS(ctx, database.MigrationsFS, database.MigrationsDir); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Repositories
	leadRepo := repository.NewLeadRepository(db.Pool)
	interactionRepo := repository.NewInteractionRepository(db.Pool)
	followUpRepo := repository.NewFollowUpRepository(db.Pool)

	// Outbound clients
	openaiClient := ai.NewOpenAIClient(&cfg.OpenAI, logger)
	waClient := whatsapp.NewClient(&cfg.WhatsApp, logger)
	calClient := calendar.NewClient(&cfg.Calendar, logger)
	notifier := notify.New(&cfg.Notify, logger)

	aiBudget := ratelimit.NewAIBudget(ratelimit.DefaultAIBudgetConfig(), logger)
	responder := ai.NewBudgetedResponder(
		ai.NewResponder(openaiClient, cfg.Dealer, ai.StaticKnowledge{}, logger),
		aiBudget,
		logger,
	)
	clk := clock.New()
	m := metrics.NewMetrics()

	// Error rate tracking feeds the team alert channel when something
	// starts failing hard.
	errorRateConfig := metrics.DefaultErrorRateConfig()
	errorRateConfig.AlertCallback = func(category metrics.ErrorCategory, rate float64) {
		notifier.SystemError(context.Background(), string(category),
			fmt.Errorf("error rate %.1f/s exceeds threshold", rate))
	}
	errorTracker := metrics.NewErrorRateTracker(errorRateConfig)

	// Services
	leadService := service.NewLeadService(
		leadRepo, interactionRepo, followUpRepo, db.TxManager,
		waClient, responder, calClient, notifier,
		m, clk, logger,
	)
	followUpService := service.NewFollowUpService(
		leadRepo, interactionRepo, followUpRepo,
		waClient, notifier,
		m, clk, cfg.FollowUp, cfg.Dealer, logger,
	)

	// Rate limiters
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, logger)
	phoneLimiter := middleware.NewPhoneRateLimiter(logger)

	// Handlers
	webhookHandler := handler.NewWebhookHandler(handler.WebhookHandlerConfig{
		Processor:   leadService,
		PhoneLimits: phoneLimiter,
		Metrics:     m,
		Config:      cfg,
		Logger:      logger,
	})
	healthHandler := handler.NewHealthHandler(handler.HealthHandlerConfig{
		DB: db,
		Circuits: map[string]handler.CircuitChecker{
			"openai":   openaiClient,
			"twilio":   waClient,
			"calendar": calClient,
		},
		Logger: logger,
	})
	dashboardHandler := handler.NewDashboardHandler(handler.DashboardHandlerConfig{
		Leads:     leadService,
		FollowUps: followUpRepo,
		Clock:     clk,
		Logger:    logger,
	})
	logLevelHandler := handler.NewLogLevelHandler(appLogger.AtomicLevel(), logger)

	correlation := middleware.NewRequestCorrelation(logger)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(correlation.Middleware)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(chimiddleware.Compress(5))
	r.Use(m.Middleware)
	r.Use(trackErrors(errorTracker))
	r.Use(middleware.RateLimit(rateLimiter))

	healthHandler.RegisterRoutes(r)
	r.Handle("/metrics", m.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.BodySizeLimiterForm())
		webhookHandler.RegisterRoutes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(handler.APIKeyAuth(cfg.Admin.APIKeyHash, logger))
		r.Use(middleware.BodySizeLimiterJSON())
		dashboardHandler.RegisterRoutes(r)
		r.Handle("/debug/loglevel", logLevelHandler)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start the follow-up scheduler
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		followUpService.Run(schedulerCtx)
	}()

	auditLog := audit.NewLogger(logger)
	auditLog.ServiceStarted(ctx, cfg.Server.Environment)

	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	shutdownCoord := shutdown.NewCoordinator(&shutdown.Config{
		Timeout: 30 * time.Second,
	}, logger)

	// Phase 2 (Drain): let in-flight requests complete
	shutdownCoord.RegisterFunc(shutdown.PhaseDrain, "http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	// Phase 3 (Shutdown): stop background workers
	shutdownCoord.RegisterFunc(shutdown.PhaseShutdown, "follow-up-scheduler", func(ctx context.Context) error {
		stopScheduler()
		select {
		case <-schedulerDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	// Phase 4 (Cleanup): close connections and flush buffers
	shutdownCoord.RegisterFunc(shutdown.PhaseCleanup, "database", func(ctx context.Context) error {
		db.Close()
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("received shutdown signal")
	auditLog.ServiceStopping(ctx, "signal received")

	if err := shutdownCoord.Shutdown(ctx); err != nil {
		logger.Error("shutdown completed with errors", zap.Error(err))
	}
}

// trackErrors feeds the error rate tracker from HTTP outcomes so sustained
// failure bursts page the team.
func trackErrors(tracker *metrics.ErrorRateTracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracker.RecordRequest()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			if sw.status >= 500 {
				tracker.RecordError(metrics.ErrorCategoryHTTP)
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

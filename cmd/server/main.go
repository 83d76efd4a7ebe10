// Honeypot - scam-baiting conversation server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/honeypot/internal/api"
	"github.com/ashureev/honeypot/internal/config"
	"github.com/ashureev/honeypot/internal/engine"
	"github.com/ashureev/honeypot/internal/intent"
	"github.com/ashureev/honeypot/internal/middleware"
	"github.com/ashureev/honeypot/internal/policy"
	"github.com/ashureev/honeypot/internal/render"
	"github.com/ashureev/honeypot/internal/report"
	"github.com/ashureev/honeypot/internal/session"
	"github.com/ashureev/honeypot/internal/store"
	"github.com/ashureev/honeypot/internal/transcript"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	ledger, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			slog.Error("Failed to close report ledger", "error", closeErr)
		}
	}()

	if err := ledger.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	recorders := []report.Recorder{ledger}
	if cfg.Archive.Enabled() {
		archive, err := store.NewS3Archive(store.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			Prefix:    cfg.Archive.Prefix,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			slog.Error("Failed to initialize report archive", "error", err)
			os.Exit(1)
		}
		recorders = append(recorders, archive)
		slog.Info("Report archive enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	classifier := intent.Load(cfg.ModelDir, logger)
	slog.Info("Classifier ready", "variant", classifier.Variant(), "threshold", cfg.Classifier.Threshold)
	if classifier.Variant() == intent.VariantHeuristic {
		slog.Warn("SCAM_THRESHOLD has no effect on the keyword heuristic", "threshold", cfg.Classifier.Threshold)
	}

	templates, err := render.LoadTemplates(cfg.LLM.TemplatesPath)
	if err != nil {
		slog.Error("Failed to load reply templates", "error", err)
		os.Exit(1)
	}

	var backend render.Renderer = render.NewStatic(templates)
	if cfg.LLM.Enabled() {
		gemini, err := render.NewGemini(ctx, render.GeminiConfig{
			APIKey:          cfg.LLM.APIKey,
			Model:           cfg.LLM.Model,
			Temperature:     float32(cfg.LLM.Temperature),
			MaxOutputTokens: int32(cfg.LLM.MaxTokens),
			HistoryWindow:   cfg.LLM.HistoryWindow,
		}, templates)
		if err != nil {
			slog.Warn("Failed to initialize LLM renderer, using canned replies", "error", err)
		} else {
			backend = gemini
			slog.Info("LLM renderer enabled", "renderer", gemini.Name())
		}
	} else {
		slog.Info("LLM renderer disabled (GEMINI_API_KEY not set), using canned replies")
	}
	renderer := render.NewGuarded(backend, templates, render.GuardConfig{
		Timeout:  cfg.LLM.Timeout,
		MinWords: cfg.LLM.MinWords,
		MaxWords: cfg.LLM.MaxWords,
	}, logger)

	reporter := report.NewReporter(
		report.NewHTTPDeliverer(cfg.Callback.URL, nil, cfg.Callback.Timeout),
		report.RetryPolicy{
			MaxAttempts: cfg.Callback.MaxAttempts,
			Backoff:     report.FixedBackoff(cfg.Callback.Backoff),
			Sleep:       report.SleepContext,
		},
		logger,
		recorders...,
	)

	conversationLogger, err := transcript.NewLogger(transcript.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	sessions, err := session.NewStore(session.Config{
		Capacity: cfg.Sessions.Capacity,
		IdleTTL:  cfg.Sessions.IdleTTL,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	sessions.StartSweeper(ctx, cfg.Sessions.SweepInterval)

	eng, err := engine.New(engine.Deps{
		Sessions:   sessions,
		Classifier: classifier,
		Policy: policy.NewEngine(policy.Config{
			EarlyStallTurns:  cfg.Policy.EarlyStallTurns,
			EarlyStallWeight: cfg.Policy.EarlyStallWeight,
			ComplaintWeight:  cfg.Policy.ComplaintWeight,
			Seed:             cfg.Policy.Seed,
		}, nil),
		Renderer:   renderer,
		Templates:  templates,
		Reporter:   reporter,
		History:    ledger,
		Transcript: conversationLogger,
		Logger:     logger,
	}, engine.Config{
		ScamThreshold: cfg.Classifier.Threshold,
		Stop: policy.StopConfig{
			MinCategories:   cfg.Stop.MinCategories,
			MaxTurns:        cfg.Stop.MaxTurns,
			Window:          cfg.Stop.Window,
			MinCounterparty: cfg.Stop.MinCounterparty,
			MaxAvgWords:     cfg.Stop.MaxAvgWords,
		},
		HistoryWindow: cfg.LLM.HistoryWindow,
		ReportTimeout: cfg.Callback.Deadline,
	})
	if err != nil {
		slog.Error("Failed to initialize conversation engine", "error", err)
		os.Exit(1)
	}

	var limiter *api.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = api.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)
		limiter.StartEviction(ctx)
	}

	// Initialize handlers.
	honeypotHandler := api.NewHoneypotHandler(eng, api.HoneypotConfig{
		APIKey:       cfg.APIKey,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Limiter:      limiter,
		History:      ledger,
	}, logger)
	healthHandler := api.NewHealthHandler(ledger, api.HealthInfo{
		Classifier:        classifier.Variant(),
		LLMEnabled:        cfg.LLM.Enabled(),
		LiveSessions:      eng.LiveSessions,
		TranscriptDropped: conversationLogger.Dropped,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Authenticated routes.
	honeypotHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := eng.WaitContext(shutdownCtx); err != nil {
		slog.Warn("Pending report deliveries abandoned", "error", err)
	}

	slog.Info("Server stopped successfully")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/p-n-ai/pai-formations/internal/api"
	"github.com/p-n-ai/pai-formations/internal/catalog"
	"github.com/p-n-ai/pai-formations/internal/curriculum"
	"github.com/p-n-ai/pai-formations/internal/evaluation"
	"github.com/p-n-ai/pai-formations/internal/live"
	"github.com/p-n-ai/pai-formations/internal/platform/cache"
	"github.com/p-n-ai/pai-formations/internal/platform/config"
	"github.com/p-n-ai/pai-formations/internal/platform/database"
	"github.com/p-n-ai/pai-formations/internal/platform/observability"
	"github.com/p-n-ai/pai-formations/internal/quiz"
	"github.com/p-n-ai/pai-formations/internal/tpbatch"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	flush, err := observability.Init(cfg.Sentry.DSN, cfg.Env, version)
	if err != nil {
		slog.Warn("sentry disabled", "error", err)
	}
	defer flush()

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise services", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.New(deps).Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from LEARN_LOG_LEVEL and
// LEARN_LOG_FORMAT. Unknown levels fall back to info.
func newLogger(w io.Writer, lc config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(lc.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// buildDeps wires the record stores for the configured store mode together
// with the optional summary cache and the live results hub.
func buildDeps(ctx context.Context, cfg *config.Config) (api.Deps, func(), error) {
	var (
		reader  curriculum.Reader
		configs evaluation.Source
		batches tpbatch.Source
		store   quiz.Store
		events  quiz.EventLogger
		checks  []func(context.Context) error
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Store {
	case config.StorePostgres:
		db, err := database.New(ctx, database.Options{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.ConnLifetime(),
			MaxConnIdleTime: cfg.Database.ConnIdle(),
			Migrate:         cfg.Database.Migrate,
		})
		if err != nil {
			return api.Deps{}, cleanup, fmt.Errorf("connect database: %w", err)
		}
		closers = append(closers, db.Close)
		checks = append(checks, db.HealthCheck)

		pr, err := curriculum.NewPostgresReader(db.Pool)
		if err != nil {
			cleanup()
			return api.Deps{}, func() {}, err
		}
		qs, err := quiz.NewPostgresStore(db.Pool)
		if err != nil {
			cleanup()
			return api.Deps{}, func() {}, err
		}
		reader = pr
		configs = evaluation.NewPostgresSource(db.Pool)
		batches = tpbatch.NewPostgresSource(db.Pool)
		store = qs
		events = quiz.NewPostgresEventLogger(db.Pool)

	default:
		l, err := catalog.NewLoader(cfg.CurriculumPath)
		if err != nil {
			return api.Deps{}, cleanup, err
		}
		reader = l.Courses
		configs = l.Evaluations
		batches = l.Batches
		store = quiz.NewMemoryStore()
		events = quiz.NewMemoryEventLogger()
	}

	var summaries quiz.SummaryCache
	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL, cfg.Cache.TTL())
		if err != nil {
			// The cache only saves work; run without it.
			slog.Warn("summary cache disabled", "error", err)
		} else {
			summaries = c
			checks = append(checks, c.HealthCheck)
			closers = append(closers, func() { _ = c.Close() })
		}
	}

	hub := live.NewHub()
	engine := quiz.NewEngine(quiz.EngineConfig{
		Store:               store,
		Events:              events,
		Cache:               summaries,
		OnSubmit:            hub.Publish,
		DefaultPassingScore: cfg.Evaluation.DefaultPassingScore,
		DefaultMaxAttempts:  cfg.Evaluation.DefaultMaxAttempts,
	})

	return api.Deps{
		Tracker:     curriculum.NewTracker(reader),
		Evaluations: configs,
		Batches:     batches,
		Quiz:        engine,
		Hub:         hub,
		Ready: func(ctx context.Context) error {
			for _, check := range checks {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	}, cleanup, nil
}

// Package main is the entrypoint for the DevForge API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devforge-dev/devforge/internal/api"
	"github.com/devforge-dev/devforge/internal/api/handler"
	mw "github.com/devforge-dev/devforge/internal/api/middleware"
	"github.com/devforge-dev/devforge/internal/cache"
	"github.com/devforge-dev/devforge/internal/config"
	"github.com/devforge-dev/devforge/internal/events"
	"github.com/devforge-dev/devforge/internal/github"
	"github.com/devforge-dev/devforge/internal/queue"
	"github.com/devforge-dev/devforge/internal/ratelimit"
	"github.com/devforge-dev/devforge/internal/security"
	"github.com/devforge-dev/devforge/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Connect to Redis; the cache, queue and event bus share one client
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	redisCache := cache.NewRedisCache(redisClient)
	taskQueue := queue.NewRedisQueue(redisClient)
	bus := events.NewRedisBus(redisClient)
	limiter := ratelimit.New(redisCache)

	// 5. Create store and token sealing
	pgStore := store.NewPostgresStore(pool)

	box, err := security.NewBox(cfg.TokenKey)
	if err != nil {
		return fmt.Errorf("create token box: %w", err)
	}

	// 6. OAuth and GitHub account lookup for the callback
	oauth := github.NewOAuth(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.RedirectURI)
	fetchAccount := func(ctx context.Context, token string) (*github.Account, error) {
		client := github.NewAPIClient(token, limiter, cfg.GitHub.HourlyQuota, cfg.GitHub.PerMinuteLimit, cfg.Worker.MaxRetries)
		return client.GetAuthenticatedUser(ctx)
	}

	// 7. Build router with dependencies
	auth := mw.NewAuth(box)
	rateLimit := mw.NewRateLimit(redisCache, cfg.GitHub.PerMinuteLimit)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:          handler.NewHealthHandler(pgStore, redisCache),
		LoginHandler:           handler.NewLoginHandler(oauth, redisCache),
		CallbackHandler:        handler.NewCallbackHandler(oauth, redisCache, pgStore, box, auth, fetchAccount, taskQueue),
		MeHandler:              handler.NewMeHandler(pgStore),
		SyncHandler:            handler.NewSyncHandler(taskQueue),
		ListReposHandler:       handler.NewListReposHandler(pgStore),
		CreatePortfolioHandler: handler.NewCreatePortfolioHandler(pgStore),
		GetPortfolioHandler:    handler.NewGetPortfolioHandler(pgStore),
		GenerateHandler:        handler.NewGenerateHandler(pgStore, taskQueue),
		JobHandler:             handler.NewJobHandler(pgStore),
		JobEventsHandler:       handler.NewJobEventsHandler(pgStore, bus),
		PublicSiteHandler:      handler.NewPublicSiteHandler(pgStore),

		GeneratedFiles: http.FileServer(http.Dir(cfg.Deploy.OutputDir)),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: SSE streams stay open for a job's whole lifetime.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

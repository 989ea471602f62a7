// Package main is the entrypoint for the DevForge background worker. It
// drains the shared task queue: profile syncs, commit analysis fan-out,
// AI descriptions and portfolio generation all run here.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/devforge-dev/devforge/internal/ai"
	"github.com/devforge-dev/devforge/internal/analyzer"
	"github.com/devforge-dev/devforge/internal/cache"
	"github.com/devforge-dev/devforge/internal/config"
	"github.com/devforge-dev/devforge/internal/deploy"
	"github.com/devforge-dev/devforge/internal/events"
	"github.com/devforge-dev/devforge/internal/generator"
	"github.com/devforge-dev/devforge/internal/github"
	"github.com/devforge-dev/devforge/internal/queue"
	"github.com/devforge-dev/devforge/internal/ratelimit"
	"github.com/devforge-dev/devforge/internal/render"
	"github.com/devforge-dev/devforge/internal/security"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/internal/syncer"
	"github.com/devforge-dev/devforge/internal/tasks"
)

var errNoAccessToken = errors.New("user has no stored access token")

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "concurrency", cfg.Worker.Concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

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

	pgStore := store.NewPostgresStore(pool)
	redisCache := cache.NewRedisCache(redisClient)
	taskQueue := queue.NewRedisQueue(redisClient)
	bus := events.NewRedisBus(redisClient)
	limiter := ratelimit.New(redisCache)

	box, err := security.NewBox(cfg.TokenKey)
	if err != nil {
		return fmt.Errorf("create token box: %w", err)
	}

	// Resolves a user to a GitHub client by unsealing their stored token.
	clients := func(ctx context.Context, userID uuid.UUID) (github.Client, error) {
		user, err := pgStore.GetUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load user %s: %w", userID, err)
		}
		if user.AccessToken == nil {
			return nil, errNoAccessToken
		}
		token, err := box.Open(*user.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("unseal access token: %w", err)
		}
		return github.NewAPIClient(token, limiter, cfg.GitHub.HourlyQuota, cfg.GitHub.PerMinuteLimit, cfg.Worker.MaxRetries), nil
	}

	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", provider.Name())

	renderer, err := render.New()
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	deployer := deploy.New(cfg.Deploy.OutputDir, cfg.Deploy.PublicURL)

	// Commit batches run on their own list and pool. A repository-analysis
	// task holds its worker slot while joining the batches it fanned out,
	// so batches draining the same pool could starve behind their parents.
	batchQueue := queue.NewRedisBatchQueue(redisClient)

	worker := queue.NewWorker(taskQueue, cfg.Worker.Concurrency, cfg.Worker.MaxRetries)
	batchWorker := queue.NewWorker(batchQueue, cfg.Worker.Concurrency, cfg.Worker.MaxRetries)

	pipeline := analyzer.New(pgStore, batchQueue, clients, analyzer.Config{
		BatchSize:   cfg.Analysis.BatchSize,
		SHALookback: cfg.Analysis.SHALookback,
		JoinTimeout: cfg.Analysis.JoinTimeout,
		FreshTTL:    cfg.Analysis.FreshTTL,
	})
	pipeline.RegisterRepositoryHandler(worker)
	pipeline.RegisterBatchHandler(batchWorker)

	ai.NewDescriptionService(provider, pgStore, cfg.AI.Timeout).RegisterHandlers(worker)

	generator.New(pgStore, taskQueue, bus, renderer, deployer, cfg.Analysis.TopRepos).RegisterHandlers(worker)

	worker.Register(tasks.TypeSyncUser, func(ctx context.Context, payload json.RawMessage) (any, error) {
		var p tasks.SyncUserPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode sync payload: %w", err)
		}
		client, err := clients(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		return nil, syncer.New(pgStore, client, cfg.Worker.MaxRetries).Run(ctx, p.UserID)
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error { return batchWorker.Run(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker run: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

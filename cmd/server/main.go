package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/postpulse/postpulse/internal/bot"
	"github.com/postpulse/postpulse/internal/database"
	"github.com/postpulse/postpulse/internal/metrics"
	"github.com/postpulse/postpulse/internal/platform/config"
	"github.com/postpulse/postpulse/internal/platform/logging"
	"github.com/postpulse/postpulse/internal/rating"
	"github.com/postpulse/postpulse/internal/redis"
	"github.com/postpulse/postpulse/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupStore(cfg *config.Config, clock clockwork.Clock) (rating.VoteStore, *pgxpool.Pool, *goredis.Client) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client := setupRedis(context.Background(), cfg)
		return rating.NewRedisStore(client, cfg.PostRetention), nil, client
	case config.BackendPostgres:
		pool := setupDB(cfg)
		return database.NewVoteRepo(pool), pool, nil
	default:
		return rating.NewMemoryStore(clock), nil, nil
	}
}

func runGracefulShutdown(srv *server.Server, engine *rating.Engine) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		engine.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "store", cfg.StoreBackend)

	store, pool, redisClient := setupStore(cfg, clock)
	if pool != nil {
		defer pool.Close()
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	messenger := bot.NewClient(cfg.BotAPIBaseURL, cfg.BotToken, m)

	engine := rating.NewEngine(store, messenger, clock, cfg.PostRetention)
	engine.Start()

	webhook := bot.NewWebhookHandler(cfg.WebhookSecret, engine, messenger, m)

	srv := server.NewServer(cfg, engine, webhook, pgPinger(pool), redisClient)

	done := runGracefulShutdown(srv, engine)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}

// pgPinger avoids handing the server a typed-nil interface when Postgres is
// not configured.
func pgPinger(pool *pgxpool.Pool) interface{ Ping(ctx context.Context) error } {
	if pool == nil {
		return nil
	}
	return pool
}

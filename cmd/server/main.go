// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"exbuddy/internal/account"
	"exbuddy/internal/common/auth"
	"exbuddy/internal/common/config"
	"exbuddy/internal/common/database"
	"exbuddy/internal/common/health"
	commonhttp "exbuddy/internal/common/http"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/common/observability"
	"exbuddy/internal/exercise"
	"exbuddy/internal/procedure"
	"exbuddy/internal/reqctx"
	"exbuddy/internal/session"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting procedure server...", zap.String("app", cfg.App.Name))

	obs := observability.New("procedure-server", log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		if err := esClient.Ping(ctx); err != nil {
			return err
		}
		return esClient.EnsureIndex(ctx, cfg.Database.Elasticsearch.Index)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Session and account stack ---
	httpClient := commonhttp.NewClient(config.GetDuration(cfg.Auth.TokenRefreshTimeout))
	provider := auth.NewProviderClient(cfg.Auth.Provider, httpClient.HTTPClient())

	resolver := session.NewResolver(session.NewPostgresStore(pg.DB), cfg.Auth.Session, log)
	refresher := account.NewRefresher(
		account.NewPostgresStore(pg.DB),
		provider,
		config.GetDuration(cfg.Auth.TokenRefreshTimeout),
		log,
	)
	builder := reqctx.NewBuilder(resolver, refresher, log)

	// --- Procedures ---
	index := exercise.NewSearchIndex(esClient.Client, cfg.Database.Elasticsearch.Index)
	exercises := exercise.NewService(
		exercise.NewRepository(pg.DB),
		index,
		exercise.NewCache(rdb.Client, time.Duration(cfg.Search.CacheTTL)*time.Second),
		log,
	)

	reg := procedure.NewRegistry()
	exercises.Register(reg, cfg.Search.MaxQueryLen)
	session.Register(reg)
	zapLog.Info("Procedures registered", zap.Strings("paths", reg.Paths()))

	if n, err := exercises.Reindex(ctx, index); err != nil {
		zapLog.Warn("Initial reindex failed, search may be stale", zap.Error(err))
	} else {
		zapLog.Info("Exercise index synced", zap.Int("entries", n))
	}

	server := procedure.NewServer(reg, builder, log, obs, procedure.ServerOptions{
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	})
	server.Echo().Server.ReadTimeout = config.GetDuration(cfg.Server.ReadTimeout)
	server.Echo().Server.WriteTimeout = config.GetDuration(cfg.Server.WriteTimeout)

	// --- Health & Metrics Server ---
	healthSrv := health.NewServer(cfg.Server.MetricsAddress, map[string]health.Check{
		"postgres":      pg.Ping,
		"redis":         rdb.Ping,
		"elasticsearch": esClient.Ping,
	}, log)
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		zapLog.Info("Procedure server listening", zap.String("address", cfg.Server.Address))
		serveErr <- server.Start(ctx, cfg.Server.Address)
	}()

	// --- Graceful Shutdown ---
	select {
	case <-ctx.Done():
		zapLog.Info("Shutdown signal received, draining requests...")
	case err := <-serveErr:
		if err != nil {
			zapLog.Error("Procedure server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping procedure server", zap.Error(err))
	}
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing metrics", zap.Error(err))
	}

	zapLog.Info("Procedure server stopped gracefully")
}

// cmd/worker-manager/main.go
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
	"exbuddy/internal/common/camunda"
	"exbuddy/internal/common/config"
	"exbuddy/internal/common/database"
	"exbuddy/internal/common/health"
	commonhttp "exbuddy/internal/common/http"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/common/observability"
	"exbuddy/internal/session"

	rpt "exbuddy/internal/workers/auth/refresh-provider-token"
	pes "exbuddy/internal/workers/session/purge-expired-sessions"
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
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = config.ValidateForWorkers(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	obs := observability.New("worker-manager", log)

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClient(camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

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
	zapLog.Info("PostgreSQL connected successfully")

	accounts := account.NewPostgresStore(pg.DB)
	refreshTimeout := config.GetDuration(cfg.Auth.TokenRefreshTimeout)
	provider := auth.NewProviderClient(cfg.Auth.Provider, commonhttp.NewClient(refreshTimeout).HTTPClient())
	refresher := account.NewRefresher(accounts, provider, refreshTimeout, log)

	// --- Register Workers ---
	var workers []*camunda.CamundaWorker

	if taskType := pes.TaskType; config.IsWorkerEnabled(cfg, taskType) {
		wcfg := config.GetWorkerConfig(cfg, taskType)
		handler := pes.NewHandler(pes.NewConfig(wcfg), session.NewPostgresStore(pg.DB), obs, log)
		workers = append(workers, camunda.NewWorker(zeebe.Raw(), taskType, wcfg.MaxJobsActive,
			config.GetDuration(wcfg.Timeout), handler, log))
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", taskType))
	}

	if taskType := rpt.TaskType; config.IsWorkerEnabled(cfg, taskType) {
		wcfg := config.GetWorkerConfig(cfg, taskType)
		handler := rpt.NewHandler(rpt.NewConfig(wcfg), accounts, refresher, obs, log)
		workers = append(workers, camunda.NewWorker(zeebe.Raw(), taskType, wcfg.MaxJobsActive,
			config.GetDuration(wcfg.Timeout), handler, log))
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", taskType))
	}

	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	healthSrv := health.NewServer(cfg.Server.MetricsAddress, map[string]health.Check{
		"postgres": pg.Ping,
		"zeebe":    zeebe.HealthCheck,
	}, log)
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing metrics", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/radiology-ops/cmd/mainconfig"
	"github.com/wolfman30/radiology-ops/internal/api/router"
	"github.com/wolfman30/radiology-ops/internal/app/bootstrap"
	appconfig "github.com/wolfman30/radiology-ops/internal/config"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

func main() {
	mainconfig.LoadDotEnv()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting radiology desk API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store", cfg.StoreBackend,
	)
	if cfg.StaffJWTSecret == "" {
		logger.Warn("STAFF_JWT_SECRET not set; every desk route will answer 401")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, metricsHandler := setupMetrics()
	deps, cleanup, err := openDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()
	deps.Registry = reg

	desk, err := bootstrap.BuildDesk(cfg, deps, logger)
	if err != nil {
		logger.Error("failed to wire desk services", "error", err)
		os.Exit(1)
	}
	desk.StartBackground(ctx)

	// The memory queue only exists in this process, so its consumers do too.
	var worker interface{ Wait() }
	if cfg.UseMemoryQueue {
		if w := desk.StartWorkers(ctx); w != nil {
			worker = w
		}
	}

	r := router.New(desk.RouterConfig(metricsHandler))

	// Create HTTP server. Live websockets are long-lived, so only the header
	// read is bounded here.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if worker != nil {
		worker.Wait()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics builds a private registry with Go runtime collectors.
func setupMetrics() (*prometheus.Registry, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// needsAWS reports whether any configured component talks to AWS.
func needsAWS(cfg *appconfig.Config) bool {
	return cfg.StoreBackend == appconfig.BackendDynamo ||
		cfg.ArchiveBucket != "" ||
		(cfg.IntakeQueueURL != "" && !cfg.UseMemoryQueue)
}

// openDeps connects to Postgres, Redis and AWS as configured. cleanup closes
// whatever was opened.
func openDeps(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (bootstrap.Deps, func(), error) {
	var deps bootstrap.Deps
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, sqlDB, err := bootstrap.BuildPostgres(ctx, cfg)
	if err != nil {
		return deps, cleanup, err
	}
	if pool != nil {
		deps.Pool, deps.SQLDB = pool, sqlDB
		closers = append(closers, func() { _ = sqlDB.Close() }, pool.Close)
		logger.Info("connected to postgres")
	}

	if client := bootstrap.BuildRedisClient(ctx, cfg, logger, true); client != nil {
		deps.Redis = client
		closers = append(closers, func() { _ = client.Close() })
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
	}

	if needsAWS(cfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return deps, cleanup, fmt.Errorf("load AWS config: %w", err)
		}
		deps.Dynamo = dynamodb.NewFromConfig(awsCfg)
		deps.SQS = sqs.NewFromConfig(awsCfg)
		deps.S3 = mainconfig.NewS3Client(awsCfg, cfg)
	}
	return deps, cleanup, nil
}

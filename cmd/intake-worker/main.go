package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/radiology-ops/cmd/mainconfig"
	"github.com/wolfman30/radiology-ops/internal/app/bootstrap"
	appconfig "github.com/wolfman30/radiology-ops/internal/config"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

func main() {
	mainconfig.LoadDotEnv()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("intake-worker")

	if cfg.UseMemoryQueue || cfg.IntakeQueueURL == "" {
		logger.Error("intake worker needs INTAKE_QUEUE_URL; the memory queue is consumed inside the API")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	deps := bootstrap.Deps{
		SQS:      sqs.NewFromConfig(awsConfig),
		Dynamo:   dynamodb.NewFromConfig(awsConfig),
		S3:       mainconfig.NewS3Client(awsConfig, cfg),
		Registry: prometheus.NewRegistry(),
	}
	pool, sqlDB, err := bootstrap.BuildPostgres(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		defer sqlDB.Close()
		deps.Pool, deps.SQLDB = pool, sqlDB
	}
	deps.Redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if deps.Redis == nil {
		logger.Warn("redis not configured; API live views will not refresh after worker ingests")
	} else {
		defer deps.Redis.Close()
	}

	desk, err := bootstrap.BuildDesk(cfg, deps, logger)
	if err != nil {
		logger.Error("failed to wire desk services", "error", err)
		os.Exit(1)
	}

	worker := desk.StartWorkers(ctx)
	logger.Info("intake worker started", "workers", cfg.WorkerCount, "queue", cfg.IntakeQueueURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down intake worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("intake worker stopped")
	case <-doneCtx.Done():
		logger.Error("intake worker shutdown timed out", "error", doneCtx.Err())
	}
}

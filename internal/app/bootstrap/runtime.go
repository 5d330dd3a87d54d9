package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/archive"
	appconfig "github.com/wolfman30/radiology-ops/internal/config"
	"github.com/wolfman30/radiology-ops/internal/quota"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildPostgres opens a pgx pool plus a database/sql handle on the same pool
// for the audit service. Both are nil when DATABASE_URL is unset.
func BuildPostgres(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, *sql.DB, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, stdlib.OpenDBFromPool(pool), nil
}

// BuildAppointmentStore picks the backend named by STORE_BACKEND.
func BuildAppointmentStore(cfg *appconfig.Config, pool *pgxpool.Pool, dynamoClient *dynamodb.Client, logger *logging.Logger) (appointments.Store, error) {
	switch cfg.StoreBackend {
	case appconfig.BackendPostgres:
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: STORE_BACKEND=postgres requires DATABASE_URL")
		}
		return appointments.NewPostgresStore(pool), nil
	case appconfig.BackendDynamo:
		if dynamoClient == nil {
			return nil, fmt.Errorf("bootstrap: STORE_BACKEND=dynamodb requires AWS config")
		}
		return appointments.NewDynamoStore(dynamoClient, cfg.AppointmentsTable, logger), nil
	case appconfig.BackendMemory, "":
		logger.Warn("using in-memory appointment store; data is lost on restart")
		return appointments.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

// BuildSettingsStore keeps modality settings in Redis when available so every
// API instance sees supervisor edits.
func BuildSettingsStore(redisClient *redis.Client) quota.ConfigStore {
	if redisClient == nil {
		return quota.NewMemoryConfigStore(nil)
	}
	return quota.NewRedisConfigStore(redisClient, nil)
}

// BuildArchiveSink returns the S3 archive store, or a local directory store
// outside production when no bucket is configured.
func BuildArchiveSink(cfg *appconfig.Config, s3Client archive.S3API, logger *logging.Logger) archive.Sink {
	if cfg.ArchiveBucket != "" && s3Client != nil {
		return archive.NewStore(s3Client, cfg.ArchiveBucket, logger)
	}
	if cfg.Env != "production" {
		logger.Warn("ARCHIVE_BUCKET not set; writing archives to ./data", "env", cfg.Env)
		return archive.NewDirStore("data")
	}
	return archive.NewStore(nil, "", logger)
}

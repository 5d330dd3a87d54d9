package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/radiology-ops/internal/acceptance"
	"github.com/wolfman30/radiology-ops/internal/api/router"
	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/archive"
	"github.com/wolfman30/radiology-ops/internal/audit"
	appconfig "github.com/wolfman30/radiology-ops/internal/config"
	"github.com/wolfman30/radiology-ops/internal/events"
	"github.com/wolfman30/radiology-ops/internal/intake"
	"github.com/wolfman30/radiology-ops/internal/live"
	"github.com/wolfman30/radiology-ops/internal/observability/metrics"
	"github.com/wolfman30/radiology-ops/internal/quota"
	"github.com/wolfman30/radiology-ops/internal/reports"
	intakeworker "github.com/wolfman30/radiology-ops/internal/worker/intake"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

// Deps are the external clients a binary has opened. Any may be nil.
type Deps struct {
	Pool     *pgxpool.Pool
	SQLDB    *sql.DB
	Redis    *redis.Client
	Dynamo   *dynamodb.Client
	S3       *s3.Client
	SQS      *sqs.Client
	Registry prometheus.Registerer
}

// Desk holds every service the API and the intake worker share.
type Desk struct {
	Config      *appconfig.Config
	Store       appointments.Store
	Settings    quota.ConfigStore
	Allocator   *quota.Allocator
	Hub         *live.Hub
	Fanout      *live.RedisFanout
	Ingest      *intake.Service
	Queue       intake.Queue
	Coordinator *acceptance.Coordinator
	Purger      *archive.Purger
	Sink        archive.Sink
	Usages      reports.UsageStore
	Audit       audit.Recorder
	Emitter     events.Emitter
	Outbox      *events.OutboxStore
	Metrics     *metrics.DeskMetrics

	deps   Deps
	logger *logging.Logger
}

// BuildDesk wires the domain services on top of deps.
func BuildDesk(cfg *appconfig.Config, deps Deps, logger *logging.Logger) (*Desk, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	store, err := BuildAppointmentStore(cfg, deps.Pool, deps.Dynamo, logger)
	if err != nil {
		return nil, err
	}

	d := &Desk{Config: cfg, Store: store, deps: deps, logger: logger}
	d.Metrics = metrics.NewDeskMetrics(deps.Registry)
	d.Settings = BuildSettingsStore(deps.Redis)
	d.Allocator = quota.NewAllocator(d.Settings, store, d.Metrics, logger.Component("quota"))

	d.Hub = live.NewHub(store, logger.Component("live"))
	if deps.Redis != nil {
		d.Fanout = live.NewRedisFanout(deps.Redis, logger.Component("live"))
		d.Hub.SetBroadcaster(d.Fanout)
	}

	// Lifecycle events go through the outbox when Postgres is present and
	// straight to the hub otherwise.
	if deps.Pool != nil {
		d.Outbox = events.NewOutboxStore(deps.Pool)
		d.Emitter = d.Outbox
	} else {
		d.Emitter = events.NewDirectEmitter(d.Hub, logger)
	}

	if deps.SQLDB != nil {
		d.Audit = audit.NewService(deps.SQLDB)
	} else {
		d.Audit = &audit.MemoryRecorder{}
	}

	if deps.Pool != nil {
		d.Usages = reports.NewPostgresUsageStore(deps.Pool)
	} else {
		d.Usages = reports.NewMemoryUsageStore()
	}

	d.Ingest = intake.NewService(store, logger.Component("intake"),
		intake.WithAudit(d.Audit),
		intake.WithMetrics(d.Metrics),
		intake.WithEmitter(d.Emitter),
		intake.WithNotifier(d.Hub),
	)
	d.Coordinator = acceptance.NewCoordinator(store, d.Allocator, logger.Component("acceptance"),
		acceptance.WithAudit(d.Audit),
		acceptance.WithEmitter(d.Emitter),
		acceptance.WithMetrics(d.Metrics),
		acceptance.WithNotifier(d.Hub),
	)

	var s3Client archive.S3API
	if deps.S3 != nil {
		s3Client = deps.S3
	}
	d.Sink = BuildArchiveSink(cfg, s3Client, logger.Component("archive"))
	d.Purger = archive.NewPurger(store, d.Sink, logger.Component("archive"),
		archive.WithBatchSize(cfg.PurgeBatchSize),
		archive.WithAudit(d.Audit),
		archive.WithEmitter(d.Emitter),
		archive.WithMetrics(d.Metrics),
		archive.WithNotifier(d.Hub),
	)

	switch {
	case cfg.UseMemoryQueue:
		d.Queue = intake.NewMemoryQueue(256)
	case cfg.IntakeQueueURL != "" && deps.SQS != nil:
		d.Queue = intake.NewSQSQueue(deps.SQS, cfg.IntakeQueueURL)
	}
	return d, nil
}

// RouterConfig mounts the desk handlers on the API router.
func (d *Desk) RouterConfig(metricsHandler http.Handler) *router.Config {
	var enqueuer intake.Enqueuer
	if d.Queue != nil {
		enqueuer = intake.NewPublisher(d.Queue, d.logger.Component("intake"))
	}
	cfg := &router.Config{
		Logger:             d.logger,
		IntakeHandler:      intake.NewHandler(d.Ingest, enqueuer, d.Config.PublicBaseURL, d.logger),
		AppointmentHandler: acceptance.NewHandler(d.Coordinator, d.Store, d.logger),
		ModalityHandler:    quota.NewHandler(d.Allocator, d.Settings, d.Audit, d.logger),
		ReportsHandler:     reports.NewHandler(d.Store, d.Usages, d.logger),
		LiveHandler:        live.NewHandler(d.Hub, d.Config.CORSAllowedOrigins, d.logger),
		ArchiveHandler:     archive.NewHandler(d.Purger, d.Sink, d.logger),
		MetricsHandler:     metricsHandler,
		StaffAuthSecret:    d.Config.StaffJWTSecret,
		CORSAllowedOrigins: d.Config.CORSAllowedOrigins,
		IntakeRateLimit:    d.Config.IntakeRateLimit,
		IntakeBurst:        d.Config.IntakeBurst,
		StoreBackend:       d.Config.StoreBackend,
		HealthChecks:       d.healthChecks(),
	}
	return cfg
}

// StartBackground runs the outbox deliverer and the Redis fan-out until ctx
// ends. The API calls it; the intake worker only publishes.
func (d *Desk) StartBackground(ctx context.Context) {
	if d.Outbox != nil {
		deliverer := events.NewDeliverer(d.Outbox, d.Hub, d.logger.Component("outbox")).
			WithInterval(d.Config.OutboxInterval)
		go deliverer.Start(ctx)
	}
	if d.Fanout != nil {
		go func() {
			if err := d.Fanout.Run(ctx, d.Hub, nil); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("live fan-out stopped", "error", err)
			}
		}()
	}
}

// StartWorkers consumes the intake queue. It returns nil when intake is
// inline.
func (d *Desk) StartWorkers(ctx context.Context) *intakeworker.Worker {
	if d.Queue == nil {
		return nil
	}
	w := intakeworker.New(d.Queue, d.Ingest, d.logger.Component("intake-worker"),
		intakeworker.WithWorkerCount(d.Config.WorkerCount),
	)
	w.Start(ctx)
	return w
}

func (d *Desk) healthChecks() map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if d.deps.Pool != nil {
		checks["postgres"] = d.deps.Pool.Ping
	}
	if d.deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return d.deps.Redis.Ping(ctx).Err() }
	}
	return checks
}

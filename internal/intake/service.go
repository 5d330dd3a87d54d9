package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/audit"
	"github.com/wolfman30/radiology-ops/internal/events"
	"github.com/wolfman30/radiology-ops/internal/observability/metrics"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

var intakeTracer = otel.Tracer("radiology.internal.intake")

// BatchWriter is the part of appointments.Store used by ingestion.
type BatchWriter interface {
	MergeMany(ctx context.Context, patches []appointments.Appointment) error
}

// Result summarizes one ingested payload.
type Result struct {
	Records      int      `json:"records"`
	Appointments int      `json:"processed"`
	IDs          []string `json:"ids"`
}

// Service merges bridge payloads into the appointment store.
type Service struct {
	store    BatchWriter
	emitter  events.Emitter
	notifier appointments.ChangeNotifier
	audit    audit.Recorder
	metrics  *metrics.DeskMetrics
	aliases  AliasTable
	logger   *logging.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithEmitter sends an ingested event after every successful batch.
func WithEmitter(e events.Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

// WithNotifier tells live views to refresh after a batch.
func WithNotifier(n appointments.ChangeNotifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithAudit records each batch in the audit trail.
func WithAudit(r audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

// WithMetrics wires intake counters.
func WithMetrics(m *metrics.DeskMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAliases replaces DefaultAliases.
func WithAliases(t AliasTable) Option {
	return func(s *Service) {
		if len(t) > 0 {
			s.aliases = t
		}
	}
}

// WithClock overrides time.Now; tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an ingestion service.
func NewService(store BatchWriter, logger *logging.Logger, opts ...Option) *Service {
	if store == nil {
		panic("intake: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:    store,
		notifier: appointments.NopNotifier{},
		aliases:  DefaultAliases,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestEnvelope decodes raw bridge JSON and ingests its payload.
func (s *Service) IngestEnvelope(ctx context.Context, raw []byte) (Result, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return Result{}, err
	}
	return s.Ingest(ctx, env.Payload)
}

// Ingest groups the payload and writes every group in one batch. A failed
// write is reported for the whole batch; the bridge resends on its own.
func (s *Service) Ingest(ctx context.Context, payload json.RawMessage) (Result, error) {
	ctx, span := intakeTracer.Start(ctx, "intake.ingest")
	defer span.End()

	records, err := DecodeRecords(payload)
	if err != nil {
		s.metrics.ObserveIntakeRecords("rejected", 1)
		span.RecordError(err)
		return Result{}, err
	}

	grouped := GroupWith(s.aliases, records, s.now())
	res := Result{Records: len(records), Appointments: len(grouped), IDs: make([]string, len(grouped))}
	for i, a := range grouped {
		res.IDs[i] = a.ID
	}
	span.SetAttributes(
		attribute.Int("intake.records", res.Records),
		attribute.Int("intake.appointments", res.Appointments),
	)
	if len(grouped) == 0 {
		s.metrics.ObserveIntakeRecords("skipped", len(records))
		s.logger.Info("intake payload had no keyable records", "records", len(records))
		return res, nil
	}

	if err := s.store.MergeMany(ctx, grouped); err != nil {
		s.metrics.ObserveIntakeRecords("failed", len(records))
		span.RecordError(err)
		s.logger.Error("intake batch write failed", "error", err, "records", len(records), "appointments", len(grouped))
		return Result{}, fmt.Errorf("intake: merge batch: %w", err)
	}

	s.metrics.ObserveIntakeRecords("merged", len(records))
	for _, a := range grouped {
		s.metrics.ObserveIntakeGroup(string(a.ExamType))
	}
	s.notifier.AppointmentsChanged(ctx)

	if s.emitter != nil {
		evt := events.IngestedV1{Count: res.Appointments, Records: res.Records, IDs: res.IDs, OccurredAt: s.now()}
		if err := s.emitter.Emit(ctx, events.TypeIngested, evt); err != nil {
			s.logger.Warn("failed to emit ingested event", "error", err)
		}
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, audit.Event{
			Action:         audit.ActionIngest,
			ActorID:        "bridge",
			AppointmentIDs: res.IDs,
			Details:        audit.Details(map[string]int{"records": res.Records}),
		}); err != nil {
			s.logger.Warn("failed to audit intake batch", "error", err)
		}
	}

	s.logger.Info("intake batch merged", "records", res.Records, "appointments", res.Appointments)
	return res, nil
}

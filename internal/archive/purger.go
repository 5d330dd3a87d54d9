package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/audit"
	"github.com/wolfman30/radiology-ops/internal/events"
	"github.com/wolfman30/radiology-ops/internal/modality"
	"github.com/wolfman30/radiology-ops/internal/observability/metrics"
	"github.com/wolfman30/radiology-ops/internal/staff"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

// PurgeKeyword must be typed verbatim to confirm a bulk purge.
const PurgeKeyword = "DELETE ALL"

// DefaultBatchSize matches the host database's batch write limit.
const DefaultBatchSize = 500

var archiveTracer = otel.Tracer("radiology.internal.archive")

var (
	ErrPurgeKeyword  = errors.New("archive: purge requires the confirmation keyword")
	ErrForbidden     = errors.New("archive: supervisor role required")
	ErrNothingToDo   = errors.New("archive: no appointments match")
	ErrInvalidFilter = errors.New("archive: invalid filter")
)

// Filter selects the appointments an export or purge covers. Through is an
// inclusive YYYY-MM-DD upper bound on the feed date.
type Filter struct {
	Status   appointments.Status `json:"status"`
	ExamType string              `json:"examType"`
	From     string              `json:"from" validate:"omitempty,isodate"`
	Through  string              `json:"through" validate:"omitempty,isodate"`
}

// PurgeRequest is a supervisor's bulk delete.
type PurgeRequest struct {
	Filter
	Keyword string `json:"keyword"`
}

// PurgeResult reports how far a purge got. On failure Deleted counts the
// rows removed by the chunks committed before it.
type PurgeResult struct {
	Requested  int    `json:"requested"`
	Deleted    int    `json:"deleted"`
	ArchiveKey string `json:"archiveKey"`
}

// Purger archives then deletes appointments in fixed-size chunks.
type Purger struct {
	store     appointments.Store
	sink      Sink
	batchSize int
	audit     audit.Recorder
	emitter   events.Emitter
	notifier  appointments.ChangeNotifier
	metrics   *metrics.DeskMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// PurgerOption customizes a Purger.
type PurgerOption func(*Purger)

func WithBatchSize(n int) PurgerOption {
	return func(p *Purger) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithAudit(r audit.Recorder) PurgerOption { return func(p *Purger) { p.audit = r } }

func WithEmitter(e events.Emitter) PurgerOption { return func(p *Purger) { p.emitter = e } }

func WithMetrics(m *metrics.DeskMetrics) PurgerOption { return func(p *Purger) { p.metrics = m } }

func WithNotifier(n appointments.ChangeNotifier) PurgerOption {
	return func(p *Purger) {
		if n != nil {
			p.notifier = n
		}
	}
}

// NewPurger wires a purger. sink may not be nil: nothing is deleted without
// an archive copy.
func NewPurger(store appointments.Store, sink Sink, logger *logging.Logger, opts ...PurgerOption) *Purger {
	if store == nil || sink == nil {
		panic("archive: store and sink are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Purger{
		store:     store,
		sink:      sink,
		batchSize: DefaultBatchSize,
		notifier:  appointments.NopNotifier{},
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Export writes the matching appointments to the sink without deleting them.
func (p *Purger) Export(ctx context.Context, caller staff.Caller, f Filter) (PurgeResult, error) {
	if !caller.IsSupervisor() {
		return PurgeResult{}, ErrForbidden
	}
	matched, err := p.load(ctx, f)
	if err != nil {
		return PurgeResult{}, err
	}
	key, err := p.archive(ctx, "export", matched)
	if err != nil {
		return PurgeResult{Requested: len(matched)}, err
	}
	p.recordAudit(ctx, audit.ActionArchive, caller, idsOf(matched), map[string]any{"archiveKey": key, "count": len(matched)})
	return PurgeResult{Requested: len(matched), ArchiveKey: key}, nil
}

// Purge archives the matching appointments, then deletes them chunk by
// chunk. Chunks are committed one after another; a failure midway keeps the
// earlier chunks deleted and reports them in the result.
func (p *Purger) Purge(ctx context.Context, caller staff.Caller, req PurgeRequest) (PurgeResult, error) {
	ctx, span := archiveTracer.Start(ctx, "archive.purge")
	defer span.End()

	if !caller.IsSupervisor() {
		return PurgeResult{}, ErrForbidden
	}
	if req.Keyword != PurgeKeyword {
		return PurgeResult{}, ErrPurgeKeyword
	}

	matched, err := p.load(ctx, req.Filter)
	if err != nil {
		return PurgeResult{}, err
	}
	result := PurgeResult{Requested: len(matched)}
	span.SetAttributes(attribute.Int("purge.requested", len(matched)))

	key, err := p.archive(ctx, "purge", matched)
	if err != nil {
		span.RecordError(err)
		return result, err
	}
	result.ArchiveKey = key

	ids := idsOf(matched)
	var deletedIDs []string
	var purgeErr error
	for start := 0; start < len(ids); start += p.batchSize {
		end := start + p.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		deleted, err := p.store.DeleteMany(ctx, ids[start:end])
		deletedIDs = append(deletedIDs, deleted...)
		if err != nil {
			purgeErr = fmt.Errorf("archive: delete chunk at %d: %w", start, err)
			break
		}
		p.logger.Debug("purge chunk committed", "offset", start, "deleted", len(deleted))
	}

	result.Deleted = len(deletedIDs)
	p.metrics.ObservePurged(result.Deleted)
	if result.Deleted > 0 {
		p.notifier.AppointmentsChanged(ctx)
	}
	p.recordAudit(ctx, audit.ActionPurge, caller, deletedIDs, map[string]any{
		"archiveKey": key, "requested": result.Requested, "deleted": result.Deleted, "failed": purgeErr != nil,
	})
	if p.emitter != nil {
		if err := p.emitter.Emit(ctx, events.TypePurged, events.PurgedV1{
			Deleted:    result.Deleted,
			Requested:  result.Requested,
			ArchiveKey: key,
			Failed:     purgeErr != nil,
			ActorID:    caller.ID,
			OccurredAt: p.now(),
		}); err != nil {
			p.logger.Warn("failed to emit purge event", "error", err)
		}
	}

	if purgeErr != nil {
		span.RecordError(purgeErr)
		p.logger.Error("purge stopped partway", "deleted", result.Deleted, "requested", result.Requested, "archive_key", key, "error", purgeErr)
		return result, purgeErr
	}
	p.logger.Info("purge completed", "deleted", result.Deleted, "archive_key", key, "by", caller.ID)
	return result, nil
}

func (p *Purger) load(ctx context.Context, f Filter) ([]appointments.Appointment, error) {
	q := appointments.Query{Status: f.Status, From: f.From, To: f.Through}
	if f.ExamType != "" {
		tag, ok := modality.Parse(f.ExamType)
		if !ok {
			return nil, fmt.Errorf("%w: unknown exam type %q", ErrInvalidFilter, f.ExamType)
		}
		q.ExamType = tag
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, f.Status)
	}
	matched, err := p.store.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	if len(matched) == 0 {
		return nil, ErrNothingToDo
	}
	return matched, nil
}

func (p *Purger) archive(ctx context.Context, label string, appts []appointments.Appointment) (string, error) {
	data, err := Encode(appts)
	if err != nil {
		return "", err
	}
	key, err := p.sink.Put(ctx, label, data)
	if err != nil {
		return "", fmt.Errorf("archive: store %s: %w", label, err)
	}
	return key, nil
}

// recordAudit stores the trail; AppointmentIDs holds at most one chunk of
// ids to keep rows bounded.
func (p *Purger) recordAudit(ctx context.Context, action audit.Action, caller staff.Caller, ids []string, details map[string]any) {
	if p.audit == nil {
		return
	}
	if len(ids) > p.batchSize {
		ids = ids[:p.batchSize]
	}
	if err := p.audit.Record(ctx, audit.Event{
		Action:         action,
		ActorID:        caller.ID,
		ActorName:      caller.Name,
		AppointmentIDs: ids,
		Details:        audit.Details(details),
	}); err != nil {
		p.logger.Warn("failed to audit archive action", "action", action, "error", err)
	}
}

func idsOf(appts []appointments.Appointment) []string {
	ids := make([]string, len(appts))
	for i, a := range appts {
		ids[i] = a.ID
	}
	return ids
}

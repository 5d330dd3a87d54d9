package intakeworker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/radiology-ops/internal/intake"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 10
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// Worker consumes bridge envelopes from the queue and ingests them.
type Worker struct {
	queue    intake.Queue
	ingester intake.Ingester
	logger   *logging.Logger

	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	wg               sync.WaitGroup
}

// Option customizes worker behavior.
type Option func(*Worker)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) Option {
	return func(w *Worker) {
		if count > 0 {
			w.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) Option {
	return func(w *Worker) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		w.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) Option {
	return func(w *Worker) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		w.receiveBatchSize = size
	}
}

// New creates an intake worker.
func New(queue intake.Queue, ingester intake.Ingester, logger *logging.Logger, opts ...Option) *Worker {
	if queue == nil {
		panic("intakeworker: queue cannot be nil")
	}
	if ingester == nil {
		panic("intakeworker: ingester cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		queue:            queue,
		ingester:         ingester,
		logger:           logger,
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the consumer goroutines. They stop when ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until every consumer has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("intake worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("intake worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.receiveBatchSize, w.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.logger.Error("failed to receive intake messages", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage deletes the message unless ingestion failed on a backend
// error; those stay on the queue for redelivery.
func (w *Worker) handleMessage(ctx context.Context, msg intake.Message) {
	res, err := w.ingester.IngestEnvelope(ctx, []byte(msg.Body))
	switch {
	case err == nil:
		w.logger.Debug("intake message processed", "msg_id", msg.ID, "appointments", res.Appointments)
	case errors.Is(err, intake.ErrUnsupportedMessage),
		errors.Is(err, intake.ErrInvalidPayload),
		errors.Is(err, intake.ErrEmptyPayload):
		w.logger.Warn("dropping undeliverable intake message", "msg_id", msg.ID, "error", err)
	default:
		w.logger.Error("intake message failed; leaving for redelivery", "msg_id", msg.ID, "error", err)
		return
	}
	w.deleteMessage(ctx, msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete intake message", "error", err)
	}
}

package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hallbook/hallbook/internal/platform/httpx"
	"github.com/hallbook/hallbook/internal/tenant"
)

const (
	// DefaultRetryDelay is how long a job waits after its first failure before
	// the relay picks it up again. Later failures double it.
	DefaultRetryDelay = 5 * time.Minute
	// MaxRetryDelay caps the relay backoff.
	MaxRetryDelay = 6 * time.Hour
	// MaxJobAttempts is the number of runs after which the relay stops
	// retrying a FAILED job. Queueing the record again revives it.
	MaxJobAttempts = 40
)

// Syncer is the part of Gateway the processor drives.
type Syncer interface {
	SyncCustomer(ctx context.Context, ownerID, customerID int64) (string, error)
	SyncInvoice(ctx context.Context, ownerID, invoiceID int64) (string, error)
	SyncPayment(ctx context.Context, ownerID, paymentID int64) (string, error)
}

// Processor runs outbox jobs inside the worker.
type Processor struct {
	outbox     Outbox
	store      Store
	syncer     Syncer
	gate       tenant.WriteGate
	hooks      *Hooks
	logger     *slog.Logger
	now        func() time.Time
	retryDelay time.Duration
}

// NewProcessor constructs the processor. hooks may be nil, in which case the
// payments of a freshly synced invoice are not queued.
func NewProcessor(outbox Outbox, store Store, syncer Syncer, gate tenant.WriteGate, hooks *Hooks, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		outbox:     outbox,
		store:      store,
		syncer:     syncer,
		gate:       gate,
		hooks:      hooks,
		logger:     logger,
		now:        time.Now,
		retryDelay: DefaultRetryDelay,
	}
}

// IsPermanent reports whether retrying err cannot help.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrUnsupportedRecord) {
		return true
	}
	status := httpx.StatusOf(err)
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError
}

// RunJob syncs the job's record. A finished job is a no-op. lastTry is false
// while the queue will retry the task on error; the job then stays DISPATCHED.
// Otherwise a failed job becomes FAILED and the relay retries it after a
// backoff. The returned error is non-nil only when the attempt failed.
func (p *Processor) RunJob(ctx context.Context, jobID int64, lastTry bool) error {
	job, err := p.outbox.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == JobDone {
		return nil
	}
	log := p.logger.With(slog.Int64("job_id", job.ID), slog.Int64("owner_id", job.OwnerID),
		slog.String("record_type", string(job.RecordType)), slog.Int64("record_id", job.RecordID))
	retryAt := p.now().Add(p.backoff(job.Attempts + 1))

	if err := tenant.EnsureWritable(ctx, p.gate, job.OwnerID); err != nil {
		log.Info("skip sync job", slog.Any("reason", err))
		return p.outbox.FailJob(ctx, job.ID, JobFailed, err.Error(), retryAt)
	}

	if err := p.run(ctx, job); err != nil {
		status := JobFailed
		if !lastTry && !IsPermanent(err) {
			status = JobDispatched
		}
		if failErr := p.outbox.FailJob(ctx, job.ID, status, err.Error(), retryAt); failErr != nil {
			log.Error("mark sync job failed", slog.Any("error", failErr))
		}
		return fmt.Errorf("integration: job %d: %w", job.ID, err)
	}
	if err := p.outbox.CompleteJob(ctx, job.ID); err != nil {
		return err
	}
	if job.RecordType == RecordInvoice {
		p.queuePayments(ctx, job.OwnerID, job.RecordID)
	}
	return nil
}

// backoff is the wait before the relay's next try after the nth failed run.
func (p *Processor) backoff(n int) time.Duration {
	d := p.retryDelay
	for i := 1; i < n && d < MaxRetryDelay; i++ {
		d *= 2
	}
	return min(d, MaxRetryDelay)
}

func (p *Processor) run(ctx context.Context, job *Job) error {
	var err error
	switch job.RecordType {
	case RecordCustomer:
		_, err = p.syncer.SyncCustomer(ctx, job.OwnerID, job.RecordID)
	case RecordInvoice:
		_, err = p.syncer.SyncInvoice(ctx, job.OwnerID, job.RecordID)
	case RecordPayment:
		_, err = p.syncer.SyncPayment(ctx, job.OwnerID, job.RecordID)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedRecord, job.RecordType)
	}
	return err
}

func (p *Processor) queuePayments(ctx context.Context, ownerID, invoiceID int64) {
	if p.hooks == nil {
		return
	}
	payments, err := p.store.InvoicePayments(ctx, ownerID, invoiceID)
	if err != nil {
		p.logger.Warn("list invoice payments", slog.Int64("invoice_id", invoiceID), slog.Any("error", err))
		return
	}
	for _, pay := range payments {
		if pay.RemoteID() == "" {
			p.hooks.PaymentCreated(ctx, ownerID, pay.ID)
		}
	}
}

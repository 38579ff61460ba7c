package integration

import (
	"context"
	"log/slog"

	"github.com/hallbook/hallbook/internal/tenant"
)

// Enqueuer hands an outbox job to the background worker. attempt is the job's
// attempt count at dispatch, so each dispatch round gets its own task.
type Enqueuer interface {
	EnqueueSync(ctx context.Context, jobID int64, attempt int) error
}

// Hooks records outbox jobs for newly committed invoices and payments when the
// tenant has auto-sync on. It never returns an error to the caller: failures
// are logged and the relay picks the job up later.
type Hooks struct {
	outbox   Outbox
	store    Store
	settings tenant.SettingsProvider
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewHooks constructs the hooks. A nil enqueuer leaves jobs for the relay.
func NewHooks(outbox Outbox, store Store, settings tenant.SettingsProvider, enqueuer Enqueuer, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{outbox: outbox, store: store, settings: settings, enqueuer: enqueuer, logger: logger}
}

func (h *Hooks) autoSync(ctx context.Context, ownerID int64) bool {
	s, err := h.settings.Accounting(ctx, ownerID)
	if err != nil {
		h.logger.Warn("load accounting settings", slog.Int64("owner_id", ownerID), slog.Any("error", err))
		return false
	}
	return s.AutoSyncEnabled()
}

// InvoiceCreated queues the invoice for sync.
func (h *Hooks) InvoiceCreated(ctx context.Context, ownerID, invoiceID int64) {
	if h == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if !h.autoSync(ctx, ownerID) {
		return
	}
	h.schedule(ctx, ownerID, RecordInvoice, invoiceID)
}

// PaymentCreated queues the payment for sync once its invoice is synced.
// Payments of unsynced invoices are queued after the invoice sync succeeds.
func (h *Hooks) PaymentCreated(ctx context.Context, ownerID, paymentID int64) {
	if h == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if !h.autoSync(ctx, ownerID) {
		return
	}
	p, err := h.store.GetPayment(ctx, ownerID, paymentID)
	if err != nil {
		h.logger.Warn("load payment for sync", slog.Int64("payment_id", paymentID), slog.Any("error", err))
		return
	}
	if p.InvoiceID == nil || p.RemoteID() != "" {
		return
	}
	inv, err := h.store.GetInvoice(ctx, ownerID, *p.InvoiceID)
	if err != nil {
		h.logger.Warn("load invoice for sync", slog.Int64("invoice_id", *p.InvoiceID), slog.Any("error", err))
		return
	}
	if inv.RemoteID() == "" {
		return
	}
	h.schedule(ctx, ownerID, RecordPayment, paymentID)
}

func (h *Hooks) schedule(ctx context.Context, ownerID int64, recordType RecordType, recordID int64) {
	log := h.logger.With(slog.Int64("owner_id", ownerID), slog.String("record_type", string(recordType)),
		slog.Int64("record_id", recordID))
	jobID, created, err := h.outbox.InsertJob(ctx, ownerID, recordType, recordID)
	if err != nil {
		log.Error("queue accounting sync", slog.Any("error", err))
		return
	}
	if !created {
		return
	}
	job, err := h.outbox.GetJob(ctx, jobID)
	if err != nil {
		log.Warn("load queued sync job", slog.Int64("job_id", jobID), slog.Any("error", err))
		return
	}
	dispatch(ctx, h.outbox, h.enqueuer, *job, log)
}

// dispatch enqueues the job and marks it DISPATCHED. A job that cannot be
// enqueued keeps its status for the relay.
func dispatch(ctx context.Context, outbox Outbox, enqueuer Enqueuer, job Job, log *slog.Logger) bool {
	if enqueuer == nil {
		return false
	}
	if err := enqueuer.EnqueueSync(ctx, job.ID, job.Attempts); err != nil {
		log.Warn("enqueue accounting sync", slog.Int64("job_id", job.ID), slog.Any("error", err))
		return false
	}
	if err := outbox.MarkDispatched(ctx, job.ID); err != nil {
		log.Warn("mark sync job dispatched", slog.Int64("job_id", job.ID), slog.Any("error", err))
	}
	return true
}

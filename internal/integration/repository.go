package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/customers"
	"github.com/hallbook/hallbook/internal/platform/db"
)

// Store is the local side of the gateway: the records to mirror, their sync
// markers and the sync log.
type Store interface {
	GetCustomer(ctx context.Context, ownerID, id int64) (*customers.Customer, error)
	MarkCustomerSynced(ctx context.Context, ownerID, id int64, remoteID string, at time.Time) error
	GetInvoice(ctx context.Context, ownerID, id int64) (*billing.Invoice, error)
	MarkInvoiceSynced(ctx context.Context, ownerID, id int64, remoteID string, at time.Time) error
	ApplyCreditNote(ctx context.Context, ownerID, invoiceID int64, remoteID, note string, at time.Time) error
	GetPayment(ctx context.Context, ownerID, id int64) (*billing.Payment, error)
	InvoicePayments(ctx context.Context, ownerID, invoiceID int64) ([]billing.Payment, error)
	MarkPaymentSynced(ctx context.Context, ownerID, id int64, remoteID string, at time.Time) error
	InsertLog(ctx context.Context, entry SyncLog) error
	ListLogs(ctx context.Context, ownerID int64, f LogFilter) ([]SyncLog, error)
}

// Outbox persists sync jobs. A record has at most one job; a FAILED job is
// revived when the record is queued again.
type Outbox interface {
	InsertJob(ctx context.Context, ownerID int64, recordType RecordType, recordID int64) (id int64, created bool, err error)
	GetJob(ctx context.Context, id int64) (*Job, error)
	DueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error)
	MarkDispatched(ctx context.Context, id int64) error
	CompleteJob(ctx context.Context, id int64) error
	FailJob(ctx context.Context, id int64, status JobStatus, message string, retryAt time.Time) error
}

// Repository is the Postgres implementation of Store and Outbox.
type Repository struct {
	db        db.DBTX
	customers *customers.Queries
	billing   *billing.Queries
}

// NewRepository builds the repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn, customers: customers.NewQueries(conn), billing: billing.NewQueries(conn)}
}

// GetCustomer implements Store.
func (r *Repository) GetCustomer(ctx context.Context, ownerID, id int64) (*customers.Customer, error) {
	return r.customers.Get(ctx, ownerID, id)
}

// MarkCustomerSynced implements Store.
func (r *Repository) MarkCustomerSynced(ctx context.Context, ownerID, id int64, remoteID string, at time.Time) error {
	return r.customers.MarkSynced(ctx, ownerID, id, remoteID, at)
}

// GetInvoice implements Store.
func (r *Repository) GetInvoice(ctx context.Context, ownerID, id int64) (*billing.Invoice, error) {
	return r.billing.GetInvoice(ctx, ownerID, id)
}

// GetPayment implements Store.
func (r *Repository) GetPayment(ctx context.Context, ownerID, id int64) (*billing.Payment, error) {
	return r.billing.GetPayment(ctx, ownerID, id)
}

// InvoicePayments lists the invoice's live payments.
func (r *Repository) InvoicePayments(ctx context.Context, ownerID, invoiceID int64) ([]billing.Payment, error) {
	return r.billing.ListPayments(ctx, ownerID, billing.PaymentFilter{InvoiceID: invoiceID})
}

func (r *Repository) exec(ctx context.Context, notFound error, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

// MarkInvoiceSynced implements Store.
func (r *Repository) MarkInvoiceSynced(ctx context.Context, ownerID, id int64, remoteID string, at time.Time) error {
	err := r.exec(ctx, billing.ErrInvoiceNotFound, `
		UPDATE invoices
		SET qoyod_invoice_id = $3, synced_to_qoyod = true, last_sync_at = $4, updated_at = $4
		WHERE owner_id = $1 AND id = $2`, ownerID, id, remoteID, at)
	if err != nil {
		return fmt.Errorf("integration: mark invoice synced: %w", err)
	}
	return nil
}

// ApplyCreditNote cancels the invoice locally, stores the credit note id and
// appends note. The row is never deleted.
func (r *Repository) ApplyCreditNote(ctx context.Context, ownerID, invoiceID int64, remoteID, note string, at time.Time) error {
	err := r.exec(ctx, billing.ErrInvoiceNotFound, `
		UPDATE invoices
		SET status = 'CANCELLED',
		    qoyod_credit_note_id = $3,
		    notes = CASE WHEN notes = '' THEN $4 ELSE notes || E'\n' || $4 END,
		    last_sync_at = $5,
		    updated_at = $5
		WHERE owner_id = $1 AND id = $2`, ownerID, invoiceID, remoteID, note, at)
	if err != nil {
		return fmt.Errorf("integration: apply credit note: %w", err)
	}
	return nil
}

// MarkPaymentSynced implements Store.
func (r *Repository) MarkPaymentSynced(ctx context.Context, ownerID, id int64, remoteID string, at time.Time) error {
	err := r.exec(ctx, billing.ErrPaymentNotFound, `
		UPDATE payments
		SET qoyod_payment_id = $3, synced_to_qoyod = true, last_sync_at = $4
		WHERE owner_id = $1 AND id = $2`, ownerID, id, remoteID, at)
	if err != nil {
		return fmt.Errorf("integration: mark payment synced: %w", err)
	}
	return nil
}

// InsertLog appends one sync log row.
func (r *Repository) InsertLog(ctx context.Context, e SyncLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounting_syncs (
			owner_id, sync_type, record_type, record_id, status, qoyod_id,
			request_payload, response_payload, error_message, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.OwnerID, e.SyncType, e.RecordType, e.RecordID, e.Status, e.QoyodID,
		nullJSON(e.RequestPayload), nullJSON(e.ResponsePayload), e.ErrorMessage, e.CreatedAt, e.CompletedAt)
	if err != nil {
		return fmt.Errorf("integration: insert sync log: %w", err)
	}
	return nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// ListLogs returns the tenant's newest sync log rows first.
func (r *Repository) ListLogs(ctx context.Context, ownerID int64, f LogFilter) ([]SyncLog, error) {
	conds := []string{"owner_id = $1"}
	args := []any{ownerID}
	if f.RecordType != "" {
		args = append(args, f.RecordType)
		conds = append(conds, fmt.Sprintf("record_type = $%d", len(args)))
	}
	if f.RecordID > 0 {
		args = append(args, f.RecordID)
		conds = append(conds, fmt.Sprintf("record_id = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query := `
		SELECT id, owner_id, sync_type, record_type, record_id, status, qoyod_id,
		       request_payload, response_payload, error_message, created_at, completed_at
		FROM accounting_syncs
		WHERE ` + strings.Join(conds, " AND ") + fmt.Sprintf(`
		ORDER BY id DESC
		LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SyncLog
	for rows.Next() {
		var (
			e         SyncLog
			req, resp []byte
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.SyncType, &e.RecordType, &e.RecordID, &e.Status, &e.QoyodID,
			&req, &resp, &e.ErrorMessage, &e.CreatedAt, &e.CompletedAt); err != nil {
			return nil, err
		}
		e.RequestPayload, e.ResponsePayload = req, resp
		out = append(out, e)
	}
	return out, rows.Err()
}

const jobColumns = `id, owner_id, record_type, record_id, status, attempts, last_error,
	available_at, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.OwnerID, &j.RecordType, &j.RecordID, &j.Status, &j.Attempts,
		&j.LastError, &j.AvailableAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

// InsertJob queues the record. A FAILED job for the same record goes back to
// PENDING. created is false when a live or finished job already exists.
func (r *Repository) InsertJob(ctx context.Context, ownerID int64, recordType RecordType, recordID int64) (int64, bool, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO accounting_sync_jobs AS j (owner_id, record_type, record_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, record_type, record_id) DO UPDATE
		SET status = 'PENDING', available_at = now(), updated_at = now()
		WHERE j.status = 'FAILED'
		RETURNING id`, ownerID, recordType, recordID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("integration: insert job: %w", err)
	}
	return id, true, nil
}

// GetJob implements Outbox.
func (r *Repository) GetJob(ctx context.Context, id int64) (*Job, error) {
	return scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM accounting_sync_jobs WHERE id = $1`, id))
}

// DueJobs returns the jobs whose available_at has passed, oldest first:
// PENDING jobs, and FAILED jobs with attempts left.
func (r *Repository) DueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM accounting_sync_jobs
		WHERE available_at <= $1
		  AND (status = 'PENDING' OR (status = 'FAILED' AND attempts < $3))
		ORDER BY available_at, id
		LIMIT $2`, now, limit, MaxJobAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// MarkDispatched moves a PENDING or FAILED job to DISPATCHED. Jobs the worker
// already picked up are left alone.
func (r *Repository) MarkDispatched(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE accounting_sync_jobs SET status = 'DISPATCHED', updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'FAILED')`, id)
	return err
}

// CompleteJob marks the job DONE.
func (r *Repository) CompleteJob(ctx context.Context, id int64) error {
	return r.exec(ctx, ErrJobNotFound, `
		UPDATE accounting_sync_jobs
		SET status = 'DONE', attempts = attempts + 1, last_error = '', updated_at = now()
		WHERE id = $1`, id)
}

// FailJob records a failed attempt. status is DISPATCHED while the queue still
// retries the task, FAILED once the relay owns the next attempt.
func (r *Repository) FailJob(ctx context.Context, id int64, status JobStatus, message string, retryAt time.Time) error {
	return r.exec(ctx, ErrJobNotFound, `
		UPDATE accounting_sync_jobs
		SET status = $2, attempts = attempts + 1, last_error = $3, available_at = $4, updated_at = now()
		WHERE id = $1`, id, status, message, retryAt)
}

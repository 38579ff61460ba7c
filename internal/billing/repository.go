package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hallbook/hallbook/internal/platform/db"
	"github.com/hallbook/hallbook/internal/sequence"
)

// Writer issues numbered invoices and payments inside a transaction.
type Writer interface {
	NextNumber(ctx context.Context, kind sequence.Kind, year int) (string, error)
	InsertInvoice(ctx context.Context, inv Invoice) (*Invoice, error)
	InsertPayment(ctx context.Context, p Payment) (*Payment, error)
}

// TxRepository exposes billing statements. All of them filter on owner id.
type TxRepository interface {
	Writer
	LockBooking(ctx context.Context, ownerID, bookingID int64) (*BookingRef, error)
	InvoicedTotal(ctx context.Context, ownerID, bookingID int64) (decimal.Decimal, error)
	GetInvoice(ctx context.Context, ownerID, id int64) (*Invoice, error)
	LockInvoice(ctx context.Context, ownerID, id int64) (*Invoice, error)
	SumActivePayments(ctx context.Context, ownerID, invoiceID int64) (decimal.Decimal, error)
	UpdateInvoicePaid(ctx context.Context, ownerID, id int64, paid decimal.Decimal, status InvoiceStatus) error
	CancelInvoice(ctx context.Context, ownerID, id int64, note string) error
	GetPayment(ctx context.Context, ownerID, id int64) (*Payment, error)
	SoftDeletePayment(ctx context.Context, ownerID, id int64) error
}

// Repository adds transactions and list reads.
type Repository interface {
	TxRepository
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListInvoices(ctx context.Context, ownerID, bookingID int64) ([]Invoice, error)
	ListPayments(ctx context.Context, ownerID int64, filter PaymentFilter) ([]Payment, error)
}

// Queries runs billing statements against a pool or transaction.
type Queries struct {
	db  db.DBTX
	now func() time.Time
}

// NewQueries builds Queries.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{db: conn, now: time.Now}
}

// WithTx returns Queries bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx, now: q.now}
}

type repository struct {
	*Queries
	pool db.Beginner
}

// NewRepository builds the Postgres-backed Repository. Transactions run at
// ReadCommitted and serialize through row locks on bookings and invoices.
func NewRepository(pool interface {
	db.DBTX
	db.Beginner
}) Repository {
	return &repository{Queries: NewQueries(pool), pool: pool}
}

// WithTx wraps fn in a read-committed transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, r.Queries.WithTx(tx))
	})
}

// NextNumber scans the number column within the current connection.
func (q *Queries) NextNumber(ctx context.Context, kind sequence.Kind, year int) (string, error) {
	return sequence.NewGenerator(sequence.NewStore(q.db)).Next(ctx, kind, year)
}

const invoiceColumns = `id, owner_id, invoice_number, booking_id, customer_id,
	subtotal, discount_amount, vat_amount, total_amount, paid_amount, vat_method,
	status, issue_date, due_date, notes, synced_to_qoyod, qoyod_invoice_id,
	qoyod_credit_note_id, last_sync_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.OwnerID, &inv.Number, &inv.BookingID, &inv.CustomerID,
		&inv.Subtotal, &inv.DiscountAmount, &inv.VATAmount, &inv.TotalAmount, &inv.PaidAmount,
		&inv.VATMethod, &inv.Status, &inv.IssueDate, &inv.DueDate, &inv.Notes,
		&inv.SyncedToQoyod, &inv.QoyodInvoiceID, &inv.QoyodCreditNoteID, &inv.LastSyncAt,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

const paymentColumns = `id, owner_id, payment_number, booking_id, invoice_id, amount,
	payment_method, payment_date, reference, notes, is_deleted, deleted_at,
	synced_to_qoyod, qoyod_payment_id, last_sync_at, created_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OwnerID, &p.Number, &p.BookingID, &p.InvoiceID, &p.Amount,
		&p.Method, &p.PaymentDate, &p.Reference, &p.Notes, &p.IsDeleted, &p.DeletedAt,
		&p.SyncedToQoyod, &p.QoyodPaymentID, &p.LastSyncAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// InsertInvoice stores a new invoice.
func (q *Queries) InsertInvoice(ctx context.Context, inv Invoice) (*Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, `
		INSERT INTO invoices (
			owner_id, invoice_number, booking_id, customer_id, subtotal, discount_amount,
			vat_amount, total_amount, paid_amount, vat_method, status, issue_date, due_date, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+invoiceColumns,
		inv.OwnerID, inv.Number, inv.BookingID, inv.CustomerID, inv.Subtotal, inv.DiscountAmount,
		inv.VATAmount, inv.TotalAmount, inv.PaidAmount, inv.VATMethod, inv.Status,
		inv.IssueDate, inv.DueDate, inv.Notes))
}

// InsertPayment stores a new payment.
func (q *Queries) InsertPayment(ctx context.Context, p Payment) (*Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, `
		INSERT INTO payments (
			owner_id, payment_number, booking_id, invoice_id, amount, payment_method,
			payment_date, reference, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+paymentColumns,
		p.OwnerID, p.Number, p.BookingID, p.InvoiceID, p.Amount, p.Method,
		p.PaymentDate, p.Reference, p.Notes))
}

// LockBooking loads the booking row FOR UPDATE.
func (q *Queries) LockBooking(ctx context.Context, ownerID, bookingID int64) (*BookingRef, error) {
	var b BookingRef
	err := q.db.QueryRow(ctx, `
		SELECT id, owner_id, booking_number, customer_id, final_amount, status, is_deleted
		FROM bookings
		WHERE owner_id = $1 AND id = $2
		FOR UPDATE`, ownerID, bookingID).Scan(
		&b.ID, &b.OwnerID, &b.Number, &b.CustomerID, &b.FinalAmount, &b.Status, &b.IsDeleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

// InvoicedTotal sums the totals of the booking's non-cancelled invoices.
func (q *Queries) InvoicedTotal(ctx context.Context, ownerID, bookingID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount), 0)
		FROM invoices
		WHERE owner_id = $1 AND booking_id = $2 AND status <> 'CANCELLED'`, ownerID, bookingID).Scan(&total)
	return total, err
}

// GetInvoice loads an invoice of the tenant.
func (q *Queries) GetInvoice(ctx context.Context, ownerID, id int64) (*Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE owner_id = $1 AND id = $2`, ownerID, id))
}

// LockInvoice loads an invoice FOR UPDATE.
func (q *Queries) LockInvoice(ctx context.Context, ownerID, id int64) (*Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE owner_id = $1 AND id = $2 FOR UPDATE`, ownerID, id))
}

// SumActivePayments sums non-deleted payments linked to the invoice.
func (q *Queries) SumActivePayments(ctx context.Context, ownerID, invoiceID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE owner_id = $1 AND invoice_id = $2 AND NOT is_deleted`, ownerID, invoiceID).Scan(&total)
	return total, err
}

// UpdateInvoicePaid writes the reconciled paid amount and status.
func (q *Queries) UpdateInvoicePaid(ctx context.Context, ownerID, id int64, paid decimal.Decimal, status InvoiceStatus) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE invoices SET paid_amount = $3, status = $4, updated_at = $5
		WHERE owner_id = $1 AND id = $2`, ownerID, id, paid, status, q.now())
	if err != nil {
		return fmt.Errorf("billing: update paid amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// CancelInvoice marks the invoice CANCELLED and appends note.
func (q *Queries) CancelInvoice(ctx context.Context, ownerID, id int64, note string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE invoices
		SET status = 'CANCELLED',
		    notes = CASE WHEN notes = '' THEN $3 ELSE notes || E'\n' || $3 END,
		    updated_at = $4
		WHERE owner_id = $1 AND id = $2`, ownerID, id, note, q.now())
	if err != nil {
		return fmt.Errorf("billing: cancel invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// GetPayment loads a payment of the tenant, deleted or not.
func (q *Queries) GetPayment(ctx context.Context, ownerID, id int64) (*Payment, error) {
	return scanPayment(q.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE owner_id = $1 AND id = $2`, ownerID, id))
}

// SoftDeletePayment flags the payment deleted. Already deleted payments are
// reported as not found.
func (q *Queries) SoftDeletePayment(ctx context.Context, ownerID, id int64) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE payments SET is_deleted = true, deleted_at = $3
		WHERE owner_id = $1 AND id = $2 AND NOT is_deleted`, ownerID, id, q.now())
	if err != nil {
		return fmt.Errorf("billing: delete payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// ListInvoices lists the tenant's invoices, optionally for one booking.
func (q *Queries) ListInvoices(ctx context.Context, ownerID, bookingID int64) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE owner_id = $1`
	args := []any{ownerID}
	if bookingID > 0 {
		query += ` AND booking_id = $2`
		args = append(args, bookingID)
	}
	query += ` ORDER BY id DESC LIMIT 500`
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// ListPayments lists the tenant's payments matching filter.
func (q *Queries) ListPayments(ctx context.Context, ownerID int64, filter PaymentFilter) ([]Payment, error) {
	conds := []string{"owner_id = $1"}
	args := []any{ownerID}
	if filter.BookingID > 0 {
		args = append(args, filter.BookingID)
		conds = append(conds, fmt.Sprintf("booking_id = $%d", len(args)))
	}
	if filter.InvoiceID > 0 {
		args = append(args, filter.InvoiceID)
		conds = append(conds, fmt.Sprintf("invoice_id = $%d", len(args)))
	}
	if !filter.IncludeDeleted {
		conds = append(conds, "NOT is_deleted")
	}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY id DESC LIMIT 500`
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/customers"
	"github.com/hallbook/hallbook/internal/platform/db"
)

// TxRepository is what a booking transaction may touch. Customer and billing
// writes go through the same transaction.
type TxRepository interface {
	Customers() customers.Store
	Billing() billing.Writer
	GetHall(ctx context.Context, ownerID, hallID int64) (*Hall, error)
	InsertBooking(ctx context.Context, b Booking) (*Booking, error)
	AppendHistory(ctx context.Context, h HistoryEntry) error
	LockBooking(ctx context.Context, ownerID, id int64) (*Booking, error)
	SetStatus(ctx context.Context, ownerID, id int64, status Status) error
	UpdateBooking(ctx context.Context, b Booking) error
	InvoicedTotal(ctx context.Context, ownerID, bookingID int64) (decimal.Decimal, error)
}

// Repository adds transactions and reads.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	HallByToken(ctx context.Context, token uuid.UUID) (*Hall, error)
	GetBooking(ctx context.Context, ownerID, id int64) (*Booking, error)
	GetCustomer(ctx context.Context, ownerID, id int64) (*customers.Customer, error)
	ListBookings(ctx context.Context, ownerID int64, f Filter) ([]Booking, int, error)
	ListHistory(ctx context.Context, ownerID, bookingID int64) ([]HistoryEntry, error)
	InvoicedTotal(ctx context.Context, ownerID, bookingID int64) (decimal.Decimal, error)
}

// Queries runs booking statements against a pool or transaction.
type Queries struct {
	db        db.DBTX
	now       func() time.Time
	customers *customers.Queries
	billing   *billing.Queries
}

// NewQueries builds Queries.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{
		db:        conn,
		now:       time.Now,
		customers: customers.NewQueries(conn),
		billing:   billing.NewQueries(conn),
	}
}

// WithTx returns Queries whose statements, including customer and billing
// ones, run inside tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{
		db:        tx,
		now:       q.now,
		customers: q.customers.WithTx(tx),
		billing:   q.billing.WithTx(tx),
	}
}

// Customers implements TxRepository.
func (q *Queries) Customers() customers.Store { return q.customers }

// Billing implements TxRepository.
func (q *Queries) Billing() billing.Writer { return q.billing }

type repository struct {
	*Queries
	pool db.Beginner
}

// NewRepository builds the Postgres-backed Repository.
func NewRepository(pool interface {
	db.DBTX
	db.Beginner
}) Repository {
	return &repository{Queries: NewQueries(pool), pool: pool}
}

// WithTx runs fn in a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, r.Queries.WithTx(tx))
	})
}

// GetCustomer loads a customer of the tenant.
func (q *Queries) GetCustomer(ctx context.Context, ownerID, id int64) (*customers.Customer, error) {
	return q.customers.Get(ctx, ownerID, id)
}

const hallColumns = `id, owner_id, name, public_token, capacity, is_active`

func scanHall(row pgx.Row) (*Hall, error) {
	var h Hall
	if err := row.Scan(&h.ID, &h.OwnerID, &h.Name, &h.PublicToken, &h.Capacity, &h.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHallNotFound
		}
		return nil, err
	}
	return &h, nil
}

// GetHall loads an active hall of the tenant.
func (q *Queries) GetHall(ctx context.Context, ownerID, hallID int64) (*Hall, error) {
	return scanHall(q.db.QueryRow(ctx,
		`SELECT `+hallColumns+` FROM halls WHERE owner_id = $1 AND id = $2 AND is_active`, ownerID, hallID))
}

// HallByToken resolves an active hall from its public link token.
func (q *Queries) HallByToken(ctx context.Context, token uuid.UUID) (*Hall, error) {
	return scanHall(q.db.QueryRow(ctx,
		`SELECT `+hallColumns+` FROM halls WHERE public_token = $1 AND is_active`, token.String()))
}

const bookingColumns = `id, owner_id, booking_number, hall_id, customer_id, event_date,
	start_time, end_time, guest_count, coffee_servers, sacrifices, water_cartons,
	meal_type, extra_sections, total_amount, discount_amount, down_payment,
	vat_amount, final_amount, service_revenue, vat_method, status, source, notes,
	created_by, is_deleted, deleted_at, created_at, updated_at`

func bookingDest(b *Booking) []any {
	return []any{&b.ID, &b.OwnerID, &b.Number, &b.HallID, &b.CustomerID, &b.EventDate,
		&b.StartTime, &b.EndTime, &b.GuestCount, &b.Services.CoffeeServers, &b.Services.Sacrifices,
		&b.Services.WaterCartons, &b.Services.MealType, &b.Services.ExtraSections, &b.TotalAmount,
		&b.DiscountAmount, &b.DownPayment, &b.VATAmount, &b.FinalAmount, &b.ServiceRevenue,
		&b.VATMethod, &b.Status, &b.Source, &b.Notes, &b.CreatedBy, &b.IsDeleted, &b.DeletedAt,
		&b.CreatedAt, &b.UpdatedAt}
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	if err := row.Scan(bookingDest(&b)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

// InsertBooking stores a new booking.
func (q *Queries) InsertBooking(ctx context.Context, b Booking) (*Booking, error) {
	now := q.now()
	return scanBooking(q.db.QueryRow(ctx, `
		INSERT INTO bookings (
			owner_id, booking_number, hall_id, customer_id, event_date, start_time, end_time,
			guest_count, coffee_servers, sacrifices, water_cartons, meal_type, extra_sections,
			total_amount, discount_amount, down_payment, vat_amount, final_amount, service_revenue,
			vat_method, status, source, notes, created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$25)
		RETURNING `+bookingColumns,
		b.OwnerID, b.Number, b.HallID, b.CustomerID, b.EventDate, b.StartTime, b.EndTime,
		b.GuestCount, b.Services.CoffeeServers, b.Services.Sacrifices, b.Services.WaterCartons,
		b.Services.MealType, b.Services.ExtraSections, b.TotalAmount, b.DiscountAmount,
		b.DownPayment, b.VATAmount, b.FinalAmount, b.ServiceRevenue, b.VATMethod, b.Status,
		b.Source, b.Notes, b.CreatedBy, now))
}

// AppendHistory inserts one status history row.
func (q *Queries) AppendHistory(ctx context.Context, h HistoryEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO booking_status_history (booking_id, owner_id, from_status, to_status, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.BookingID, h.OwnerID, h.FromStatus, h.ToStatus, h.ActorID, h.Note, q.now())
	if err != nil {
		return fmt.Errorf("booking: append history: %w", err)
	}
	return nil
}

// LockBooking loads the booking FOR UPDATE.
func (q *Queries) LockBooking(ctx context.Context, ownerID, id int64) (*Booking, error) {
	return scanBooking(q.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE owner_id = $1 AND id = $2 FOR UPDATE`, ownerID, id))
}

// GetBooking loads a booking of the tenant, including soft-deleted ones.
func (q *Queries) GetBooking(ctx context.Context, ownerID, id int64) (*Booking, error) {
	return scanBooking(q.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE owner_id = $1 AND id = $2`, ownerID, id))
}

// SetStatus writes the status. CANCELLED also soft-deletes the row.
func (q *Queries) SetStatus(ctx context.Context, ownerID, id int64, status Status) error {
	now := q.now()
	tag, err := q.db.Exec(ctx, `
		UPDATE bookings
		SET status = $3,
		    is_deleted = is_deleted OR $3 = 'CANCELLED',
		    deleted_at = CASE WHEN $3 = 'CANCELLED' AND deleted_at IS NULL THEN $4 ELSE deleted_at END,
		    updated_at = $4
		WHERE owner_id = $1 AND id = $2`, ownerID, id, status, now)
	if err != nil {
		return fmt.Errorf("booking: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// UpdateBooking writes the editable columns of b.
func (q *Queries) UpdateBooking(ctx context.Context, b Booking) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE bookings SET
			hall_id = $3, event_date = $4, start_time = $5, end_time = $6, guest_count = $7,
			coffee_servers = $8, sacrifices = $9, water_cartons = $10, meal_type = $11,
			extra_sections = $12, total_amount = $13, discount_amount = $14, vat_amount = $15,
			final_amount = $16, service_revenue = $17, notes = $18, updated_at = $19
		WHERE owner_id = $1 AND id = $2`,
		b.OwnerID, b.ID, b.HallID, b.EventDate, b.StartTime, b.EndTime, b.GuestCount,
		b.Services.CoffeeServers, b.Services.Sacrifices, b.Services.WaterCartons, b.Services.MealType,
		b.Services.ExtraSections, b.TotalAmount, b.DiscountAmount, b.VATAmount, b.FinalAmount,
		b.ServiceRevenue, b.Notes, q.now())
	if err != nil {
		return fmt.Errorf("booking: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// InvoicedTotal sums the booking's non-cancelled invoice totals.
func (q *Queries) InvoicedTotal(ctx context.Context, ownerID, bookingID int64) (decimal.Decimal, error) {
	return q.billing.InvoicedTotal(ctx, ownerID, bookingID)
}

// ListBookings returns one page of the tenant's bookings and the total count.
func (q *Queries) ListBookings(ctx context.Context, ownerID int64, f Filter) ([]Booking, int, error) {
	conds := []string{"owner_id = $1"}
	args := []any{ownerID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.HallID > 0 {
		add("hall_id = $%d", f.HallID)
	}
	if f.CustomerID > 0 {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.From != nil {
		add("event_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("event_date <= $%d", *f.To)
	}
	if !f.IncludeDeleted {
		conds = append(conds, "NOT is_deleted")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	query := `SELECT ` + bookingColumns + `, COUNT(*) OVER () FROM bookings WHERE ` +
		strings.Join(conds, " AND ") +
		fmt.Sprintf(` ORDER BY event_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var (
		out   []Booking
		total int
	)
	for rows.Next() {
		var b Booking
		if err := rows.Scan(append(bookingDest(&b), &total)...); err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// ListHistory returns the booking's status changes, oldest first.
func (q *Queries) ListHistory(ctx context.Context, ownerID, bookingID int64) ([]HistoryEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, booking_id, owner_id, from_status, to_status, actor_id, note, created_at
		FROM booking_status_history
		WHERE owner_id = $1 AND booking_id = $2
		ORDER BY id`, ownerID, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.BookingID, &h.OwnerID, &h.FromStatus, &h.ToStatus, &h.ActorID, &h.Note, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

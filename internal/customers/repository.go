package customers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hallbook/hallbook/internal/platform/db"
)

// Queries runs customer statements against a pool or an open transaction.
type Queries struct {
	db db.DBTX
}

// NewQueries builds Queries.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

// WithTx returns Queries bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const customerColumns = `id, owner_id, name, phone, national_id, email,
	qoyod_customer_id, synced_to_qoyod, last_sync_at, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Phone, &c.NationalID, &c.Email,
		&c.QoyodCustomerID, &c.SyncedToQoyod, &c.LastSyncAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Get loads a customer of the tenant.
func (q *Queries) Get(ctx context.Context, ownerID, id int64) (*Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE owner_id = $1 AND id = $2`, ownerID, id))
}

// FindByPhoneOrNationalID matches on phone first, then on national id.
func (q *Queries) FindByPhoneOrNationalID(ctx context.Context, ownerID int64, phone, nationalID string) (*Customer, error) {
	if phone != "" {
		c, err := scanCustomer(q.db.QueryRow(ctx,
			`SELECT `+customerColumns+` FROM customers WHERE owner_id = $1 AND phone = $2 LIMIT 1`, ownerID, phone))
		if err == nil || !errors.Is(err, ErrNotFound) {
			return c, err
		}
	}
	if nationalID != "" {
		return scanCustomer(q.db.QueryRow(ctx,
			`SELECT `+customerColumns+` FROM customers WHERE owner_id = $1 AND national_id = $2 LIMIT 1`, ownerID, nationalID))
	}
	return nil, ErrNotFound
}

// Create inserts a customer for the tenant.
func (q *Queries) Create(ctx context.Context, ownerID int64, d Details) (*Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, `
		INSERT INTO customers (owner_id, name, phone, national_id, email)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING `+customerColumns,
		ownerID, d.Name, d.Phone, d.NationalID, d.Email))
}

// MarkSynced stores the remote id and sync timestamp.
func (q *Queries) MarkSynced(ctx context.Context, ownerID, id int64, remoteID string, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE customers
		SET qoyod_customer_id = $3, synced_to_qoyod = true, last_sync_at = $4, updated_at = $4
		WHERE owner_id = $1 AND id = $2`, ownerID, id, remoteID, at)
	if err != nil {
		return fmt.Errorf("customers: mark synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

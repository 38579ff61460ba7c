package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/hallbook/hallbook/internal/platform/db"
)

var columns = map[Kind]struct{ table, column string }{
	Booking: {"bookings", "booking_number"},
	Invoice: {"invoices", "invoice_number"},
	Payment: {"payments", "payment_number"},
}

// Store scans the number columns. Soft-deleted rows are included so a number
// is never handed out twice.
type Store struct {
	db db.DBTX
}

// NewStore builds a Store over a pool or transaction.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// MaxNumber implements Finder. Longer numbers sort after shorter ones so that
// 10000 follows 9999.
func (s *Store) MaxNumber(ctx context.Context, kind Kind, prefix string) (string, error) {
	col, ok := columns[kind]
	if !ok {
		return "", ErrUnknownKind
	}
	query := `SELECT ` + col.column + ` FROM ` + col.table + `
		WHERE ` + col.column + ` LIKE $1
		ORDER BY length(` + col.column + `) DESC, ` + col.column + ` DESC
		LIMIT 1`
	var number string
	err := s.db.QueryRow(ctx, query, prefix+"%").Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return number, nil
}

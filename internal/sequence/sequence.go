// Package sequence allocates human-readable document numbers of the form
// PREFIX-YEAR-NNNN by scanning the highest number already issued.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hallbook/hallbook/internal/platform/db"
)

// Kind identifies a numbered document family.
type Kind string

const (
	Booking Kind = "BK"
	Invoice Kind = "INV"
	Payment Kind = "PAY"
)

// ErrUnknownKind is returned for kinds without a backing table.
var ErrUnknownKind = errors.New("sequence: unknown kind")

// Finder returns the highest number issued for a prefix, or "" when none.
type Finder interface {
	MaxNumber(ctx context.Context, kind Kind, prefix string) (string, error)
}

// Prefix returns "<KIND>-<year>-".
func Prefix(kind Kind, year int) string {
	return fmt.Sprintf("%s-%d-", kind, year)
}

// Format renders a number with a zero-padded, at least four digit sequence.
func Format(kind Kind, year, seq int) string {
	return fmt.Sprintf("%s%04d", Prefix(kind, year), seq)
}

// Parse splits a number into its kind, year and sequence.
func Parse(number string) (Kind, int, int, bool) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 {
		return "", 0, 0, false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, false
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq < 0 {
		return "", 0, 0, false
	}
	return Kind(parts[0]), year, seq, true
}

// Generator hands out the next number per kind and year.
type Generator struct {
	finder Finder
	now    func() time.Time
}

// NewGenerator builds a generator over finder.
func NewGenerator(finder Finder) *Generator {
	return &Generator{finder: finder, now: time.Now}
}

// WithFinder returns a copy bound to another finder, typically one scoped to
// an open transaction.
func (g *Generator) WithFinder(finder Finder) *Generator {
	return &Generator{finder: finder, now: g.now}
}

// Next returns the number following the highest one issued for kind in year.
// The scan is not atomic: two concurrent callers may receive the same value
// and one insert will then fail on the unique index.
func (g *Generator) Next(ctx context.Context, kind Kind, year int) (string, error) {
	if year <= 0 {
		year = g.now().Year()
	}
	prefix := Prefix(kind, year)
	latest, err := g.finder.MaxNumber(ctx, kind, prefix)
	if err != nil {
		return "", fmt.Errorf("sequence: scan %s: %w", kind, err)
	}
	next := 1
	if latest != "" {
		_, _, seq, ok := Parse(latest)
		if !ok {
			return "", fmt.Errorf("sequence: unparsable number %q", latest)
		}
		next = seq + 1
	}
	return Format(kind, year, next), nil
}

// IsNumberConflict reports whether err is a unique violation on one of the
// number columns, which callers retry with a freshly scanned number.
func IsNumberConflict(err error) bool {
	if !db.IsUniqueViolation(err) {
		return false
	}
	switch db.ConstraintName(err) {
	case "bookings_booking_number_key", "invoices_invoice_number_key", "payments_payment_number_key":
		return true
	}
	return false
}

package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hallbook/hallbook/internal/platform/db"
)

// WriteGate decides whether a tenant may mutate data.
type WriteGate interface {
	IsWriteAllowed(ctx context.Context, ownerID int64) (bool, error)
}

// SubscriptionGate allows writes for active subscriptions and running trials.
type SubscriptionGate struct {
	db  db.DBTX
	now func() time.Time
}

// NewSubscriptionGate builds the gate over the subscriptions table.
func NewSubscriptionGate(conn db.DBTX) *SubscriptionGate {
	return &SubscriptionGate{db: conn, now: time.Now}
}

// IsWriteAllowed implements WriteGate. Tenants without a subscription row are
// denied.
func (g *SubscriptionGate) IsWriteAllowed(ctx context.Context, ownerID int64) (bool, error) {
	var (
		status     string
		trialEnds  *time.Time
		periodEnds *time.Time
	)
	err := g.db.QueryRow(ctx, `
		SELECT status, trial_ends_at, current_period_end
		FROM subscriptions
		WHERE owner_id = $1`, ownerID).Scan(&status, &trialEnds, &periodEnds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("tenant: load subscription: %w", err)
	}
	now := g.now()
	switch strings.ToUpper(status) {
	case "ACTIVE":
		return periodEnds == nil || periodEnds.After(now), nil
	case "TRIAL":
		return trialEnds != nil && trialEnds.After(now), nil
	default:
		return false, nil
	}
}

// EnsureWritable returns ErrWriteNotAllowed when the gate denies the tenant.
// A nil gate allows every write.
func EnsureWritable(ctx context.Context, gate WriteGate, ownerID int64) error {
	if gate == nil {
		return nil
	}
	ok, err := gate.IsWriteAllowed(ctx, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWriteNotAllowed
	}
	return nil
}

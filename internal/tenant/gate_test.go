package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate(t *testing.T) (*SubscriptionGate, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	gate := NewSubscriptionGate(mock)
	gate.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return gate, mock
}

func ts(s string) *time.Time {
	v, _ := time.Parse(time.RFC3339, s)
	return &v
}

func TestSubscriptionGate(t *testing.T) {
	cases := []struct {
		name    string
		status  string
		trial   *time.Time
		period  *time.Time
		allowed bool
	}{
		{"active open ended", "ACTIVE", nil, nil, true},
		{"active in period", "ACTIVE", nil, ts("2025-07-01T00:00:00Z"), true},
		{"active lapsed", "ACTIVE", nil, ts("2025-05-01T00:00:00Z"), false},
		{"trial running", "TRIAL", ts("2025-06-10T00:00:00Z"), nil, true},
		{"trial expired", "TRIAL", ts("2025-05-20T00:00:00Z"), nil, false},
		{"cancelled", "CANCELLED", nil, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate, mock := newGate(t)
			mock.ExpectQuery(`FROM subscriptions`).WithArgs(int64(7)).
				WillReturnRows(pgxmock.NewRows([]string{"status", "trial_ends_at", "current_period_end"}).
					AddRow(tc.status, tc.trial, tc.period))
			ok, err := gate.IsWriteAllowed(context.Background(), 7)
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, ok)
		})
	}
}

func TestSubscriptionGateNoRowDenies(t *testing.T) {
	gate, mock := newGate(t)
	mock.ExpectQuery(`FROM subscriptions`).WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"status", "trial_ends_at", "current_period_end"}))
	ok, err := gate.IsWriteAllowed(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

type stubGate struct {
	allowed bool
	err     error
}

func (s stubGate) IsWriteAllowed(context.Context, int64) (bool, error) { return s.allowed, s.err }

func TestEnsureWritable(t *testing.T) {
	assert.NoError(t, EnsureWritable(context.Background(), nil, 1))
	assert.NoError(t, EnsureWritable(context.Background(), stubGate{allowed: true}, 1))
	assert.ErrorIs(t, EnsureWritable(context.Background(), stubGate{}, 1), ErrWriteNotAllowed)
	boom := errors.New("db down")
	assert.ErrorIs(t, EnsureWritable(context.Background(), stubGate{err: boom}, 1), boom)
}

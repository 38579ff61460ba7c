package sequence

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreMaxNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT booking_number FROM bookings`).
		WithArgs("BK-2025-%").
		WillReturnRows(pgxmock.NewRows([]string{"booking_number"}).AddRow("BK-2025-0042"))

	n, err := NewStore(mock).MaxNumber(context.Background(), Booking, "BK-2025-")
	require.NoError(t, err)
	assert.Equal(t, "BK-2025-0042", n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMaxNumberEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT invoice_number FROM invoices`).
		WithArgs("INV-2025-%").
		WillReturnRows(pgxmock.NewRows([]string{"invoice_number"}))

	n, err := NewStore(mock).MaxNumber(context.Background(), Invoice, "INV-2025-")
	require.NoError(t, err)
	assert.Empty(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUnknownKind(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewStore(mock).MaxNumber(context.Background(), Kind("CN"), "CN-2025-")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestGeneratorOverStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT payment_number FROM payments`).
		WithArgs("PAY-2025-%").
		WillReturnRows(pgxmock.NewRows([]string{"payment_number"}).AddRow("PAY-2025-0009"))

	n, err := NewGenerator(NewStore(mock)).Next(context.Background(), Payment, 2025)
	require.NoError(t, err)
	assert.Equal(t, "PAY-2025-0010", n)
}

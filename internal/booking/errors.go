package booking

import (
	"errors"

	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/platform/httpx"
)

// Domain errors for bookings.
var (
	ErrBookingNotFound = billing.ErrBookingNotFound
	ErrHallNotFound    = httpx.NewError(httpx.ErrNotFound, "hall not found")

	ErrCustomerRequired        = httpx.NewError(httpx.ErrValidation, "customer_id or customer details are required")
	ErrDiscountExceedsTotal    = httpx.NewError(httpx.ErrValidation, "discount exceeds total amount")
	ErrDownPaymentExceedsFinal = httpx.NewError(httpx.ErrValidation, "down payment exceeds final amount")
	ErrInvalidTransition       = httpx.NewError(httpx.ErrRule, "invalid booking status transition")
	ErrBookingClosed           = billing.ErrBookingClosed
	ErrBelowInvoiced           = httpx.NewError(httpx.ErrRule, "final amount is below the invoiced total")

	// ErrCreateFailed wraps unexpected failures of the creation transaction.
	ErrCreateFailed = errors.New("booking: create failed")
)

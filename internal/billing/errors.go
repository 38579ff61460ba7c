package billing

import "github.com/hallbook/hallbook/internal/platform/httpx"

// Domain errors for invoices and payments.
var (
	ErrInvoiceNotFound = httpx.NewError(httpx.ErrNotFound, "invoice not found")
	ErrPaymentNotFound = httpx.NewError(httpx.ErrNotFound, "payment not found")
	ErrBookingNotFound = httpx.NewError(httpx.ErrNotFound, "booking not found")

	ErrFullyInvoiced          = httpx.NewError(httpx.ErrRule, "booking is fully invoiced")
	ErrAmountExceedsRemaining = httpx.NewError(httpx.ErrRule, "amount exceeds the remaining balance")
	ErrInvalidAmount          = httpx.NewError(httpx.ErrValidation, "amount must be greater than zero")
	ErrInvalidMethod          = httpx.NewError(httpx.ErrValidation, "payment method is invalid")
	ErrInvoiceSynced          = httpx.NewError(httpx.ErrRule, "invoice is synced with the accounting system; issue a credit note instead")
	ErrPaymentSynced          = httpx.NewError(httpx.ErrRule, "payment is synced with the accounting system")
	ErrInvoiceCancelled       = httpx.NewError(httpx.ErrRule, "invoice is already cancelled")
	ErrInvoiceBookingMismatch = httpx.NewError(httpx.ErrRule, "invoice does not belong to this booking")
	ErrBookingClosed          = httpx.NewError(httpx.ErrRule, "booking is closed for changes")
)

package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hallbook/hallbook/internal/money"
	"github.com/hallbook/hallbook/internal/sequence"
)

// PaidInvoiceSpec describes an invoice that is settled on issue.
type PaidInvoiceSpec struct {
	OwnerID       int64
	BookingID     int64
	CustomerID    int64
	Amount        decimal.Decimal
	VATPercentage decimal.Decimal
	Method        PaymentMethod
	Reference     string
	Notes         string
	IssuedAt      time.Time
}

// IssuePaidInvoice inserts an invoice for exactly in.Amount, marked PAID,
// together with the payment that settles it. The VAT is extracted from the
// amount (VAT-inclusive). Callers run it inside their transaction.
func IssuePaidInvoice(ctx context.Context, w Writer, in PaidInvoiceSpec) (*InvoiceWithPayment, error) {
	amount := money.Round(in.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	method := in.Method.OrDefault()
	if !method.IsValid() {
		return nil, ErrInvalidMethod
	}
	year := in.IssuedAt.Year()
	invoiceNumber, err := w.NextNumber(ctx, sequence.Invoice, year)
	if err != nil {
		return nil, err
	}
	paymentNumber, err := w.NextNumber(ctx, sequence.Payment, year)
	if err != nil {
		return nil, err
	}

	split := money.SplitInclusive(amount, in.VATPercentage).Rounded()
	day := dateOnly(in.IssuedAt)

	inv, err := w.InsertInvoice(ctx, Invoice{
		OwnerID:        in.OwnerID,
		Number:         invoiceNumber,
		BookingID:      in.BookingID,
		CustomerID:     in.CustomerID,
		Subtotal:       split.Subtotal,
		DiscountAmount: decimal.Zero,
		VATAmount:      split.VAT,
		TotalAmount:    split.Total,
		PaidAmount:     split.Total,
		VATMethod:      split.Method,
		Status:         StatusPaid,
		IssueDate:      day,
		DueDate:        day,
		Notes:          in.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("insert invoice: %w", err)
	}

	invoiceID := inv.ID
	pay, err := w.InsertPayment(ctx, Payment{
		OwnerID:     in.OwnerID,
		Number:      paymentNumber,
		BookingID:   in.BookingID,
		InvoiceID:   &invoiceID,
		Amount:      amount,
		Method:      method,
		PaymentDate: day,
		Reference:   in.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return &InvoiceWithPayment{Invoice: inv, Payment: pay}, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

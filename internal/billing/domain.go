// Package billing issues invoices and payments against bookings and keeps each
// invoice's paid amount and status consistent with its payments.
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hallbook/hallbook/internal/money"
)

// InvoiceStatus enumerates invoice states.
type InvoiceStatus string

const (
	StatusUnpaid        InvoiceStatus = "UNPAID"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusPaid          InvoiceStatus = "PAID"
	StatusCancelled     InvoiceStatus = "CANCELLED"
)

// PaymentMethod enumerates accepted payment methods.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCard         PaymentMethod = "CARD"
	MethodCheque       PaymentMethod = "CHEQUE"
	MethodOnline       PaymentMethod = "ONLINE"
)

// IsValid checks the method against the known set.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCard, MethodCheque, MethodOnline:
		return true
	}
	return false
}

// OrDefault returns CASH for an empty method.
func (m PaymentMethod) OrDefault() PaymentMethod {
	if m == "" {
		return MethodCash
	}
	return m
}

// DeriveStatus is the pure mapping from paid and total to a status.
func DeriveStatus(paid, total decimal.Decimal) InvoiceStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusUnpaid
	}
}

// Invoice is a billing document issued against a booking.
type Invoice struct {
	ID                int64           `json:"id"`
	OwnerID           int64           `json:"-"`
	Number            string          `json:"invoice_number"`
	BookingID         int64           `json:"booking_id"`
	CustomerID        int64           `json:"customer_id"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	VATAmount         decimal.Decimal `json:"vat_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	VATMethod         money.VATMethod `json:"vat_method"`
	Status            InvoiceStatus   `json:"status"`
	IssueDate         time.Time       `json:"issue_date"`
	DueDate           time.Time       `json:"due_date"`
	Notes             string          `json:"notes,omitempty"`
	SyncedToQoyod     bool            `json:"synced_to_qoyod"`
	QoyodInvoiceID    *string         `json:"qoyod_invoice_id,omitempty"`
	QoyodCreditNoteID *string         `json:"qoyod_credit_note_id,omitempty"`
	LastSyncAt        *time.Time      `json:"last_sync_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// RemoteID returns the accounting invoice id, or "" when never synced.
func (i Invoice) RemoteID() string {
	if i.QoyodInvoiceID == nil {
		return ""
	}
	return *i.QoyodInvoiceID
}

// Outstanding returns total - paid, floored at zero.
func (i Invoice) Outstanding() decimal.Decimal {
	out := i.TotalAmount.Sub(i.PaidAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// Payment is money received against a booking and optionally an invoice.
type Payment struct {
	ID             int64           `json:"id"`
	OwnerID        int64           `json:"-"`
	Number         string          `json:"payment_number"`
	BookingID      int64           `json:"booking_id"`
	InvoiceID      *int64          `json:"invoice_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Method         PaymentMethod   `json:"payment_method"`
	PaymentDate    time.Time       `json:"payment_date"`
	Reference      string          `json:"reference,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	IsDeleted      bool            `json:"is_deleted"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
	SyncedToQoyod  bool            `json:"synced_to_qoyod"`
	QoyodPaymentID *string         `json:"qoyod_payment_id,omitempty"`
	LastSyncAt     *time.Time      `json:"last_sync_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// RemoteID returns the accounting payment id, or "" when never synced.
func (p Payment) RemoteID() string {
	if p.QoyodPaymentID == nil {
		return ""
	}
	return *p.QoyodPaymentID
}

// BookingRef is the slice of a booking that billing needs.
type BookingRef struct {
	ID          int64
	OwnerID     int64
	Number      string
	CustomerID  int64
	FinalAmount decimal.Decimal
	Status      string
	IsDeleted   bool
}

// InvoiceWithPayment is the result of issuing a paid invoice.
type InvoiceWithPayment struct {
	Invoice *Invoice `json:"invoice"`
	Payment *Payment `json:"payment"`
}

// PaymentFilter narrows ListPayments.
type PaymentFilter struct {
	BookingID      int64
	InvoiceID      int64
	IncludeDeleted bool
}

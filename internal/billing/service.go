package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/hallbook/hallbook/internal/money"
	"github.com/hallbook/hallbook/internal/platform/httpx"
	"github.com/hallbook/hallbook/internal/sequence"
	"github.com/hallbook/hallbook/internal/tenant"
)

const bookingCancelled = "CANCELLED"

// SyncHooks mirrors newly committed records to the accounting system.
// Implementations must not block on the remote call and never fail the caller.
type SyncHooks interface {
	InvoiceCreated(ctx context.Context, ownerID, invoiceID int64)
	PaymentCreated(ctx context.Context, ownerID, paymentID int64)
}

// CreateInvoiceInput requests an invoice for a booking. Amount defaults to
// the booking's remaining balance.
type CreateInvoiceInput struct {
	BookingID     int64            `json:"booking_id" validate:"required,gt=0"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	PaymentMethod PaymentMethod    `json:"payment_method,omitempty"`
	Reference     string           `json:"reference,omitempty" validate:"max=120"`
	Notes         string           `json:"notes,omitempty" validate:"max=1000"`
}

// RecordPaymentInput records money received against a booking.
type RecordPaymentInput struct {
	BookingID     int64           `json:"booking_id" validate:"required,gt=0"`
	InvoiceID     *int64          `json:"invoice_id,omitempty" validate:"omitempty,gt=0"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod PaymentMethod   `json:"payment_method,omitempty"`
	PaymentDate   string          `json:"payment_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Reference     string          `json:"reference,omitempty" validate:"max=120"`
	Notes         string          `json:"notes,omitempty" validate:"max=1000"`
}

// InvoiceDetail is an invoice with its payments.
type InvoiceDetail struct {
	Invoice  *Invoice  `json:"invoice"`
	Payments []Payment `json:"payments"`
}

// PaymentResult is a recorded payment and the invoice it settled, if any.
type PaymentResult struct {
	Payment *Payment `json:"payment"`
	Invoice *Invoice `json:"invoice,omitempty"`
}

// Service coordinates invoices and payments for a tenant.
type Service struct {
	repo       Repository
	reconciler *Reconciler
	gate       tenant.WriteGate
	settings   tenant.SettingsProvider
	hooks      SyncHooks
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs the billing service.
func NewService(repo Repository, gate tenant.WriteGate, settings tenant.SettingsProvider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		reconciler: NewReconciler(repo),
		gate:       gate,
		settings:   settings,
		logger:     logger,
		now:        time.Now,
	}
}

// SetSyncHooks attaches the accounting mirror.
func (s *Service) SetSyncHooks(h SyncHooks) {
	s.hooks = h
}

// ReconcileInvoice re-derives an invoice's paid amount and status from its
// payments.
func (s *Service) ReconcileInvoice(ctx context.Context, ownerID, invoiceID int64) (*Invoice, error) {
	if err := tenant.EnsureWritable(ctx, s.gate, ownerID); err != nil {
		return nil, err
	}
	return s.reconciler.Reconcile(ctx, ownerID, invoiceID)
}

// CreateInvoiceFromBooking issues a PAID invoice for the booking's remaining
// balance (or the given amount) together with its payment, splitting VAT out
// of the amount.
func (s *Service) CreateInvoiceFromBooking(ctx context.Context, ownerID int64, in CreateInvoiceInput) (*InvoiceWithPayment, error) {
	if err := httpx.Validate(in); err != nil {
		return nil, err
	}
	if in.Amount != nil {
		rounded := money.Round(*in.Amount)
		if !rounded.IsPositive() {
			return nil, ErrInvalidAmount
		}
		in.Amount = &rounded
	}
	if !in.PaymentMethod.OrDefault().IsValid() {
		return nil, ErrInvalidMethod
	}
	if err := tenant.EnsureWritable(ctx, s.gate, ownerID); err != nil {
		return nil, err
	}
	settings, err := s.settings.Accounting(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var result *InvoiceWithPayment
	err = sequence.Retry(ctx, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			booking, err := tx.LockBooking(ctx, ownerID, in.BookingID)
			if err != nil {
				return err
			}
			if booking.IsDeleted || booking.Status == bookingCancelled {
				return ErrBookingClosed
			}
			invoiced, err := tx.InvoicedTotal(ctx, ownerID, booking.ID)
			if err != nil {
				return fmt.Errorf("invoiced total: %w", err)
			}
			remaining := booking.FinalAmount.Sub(invoiced)
			if !remaining.IsPositive() {
				return ErrFullyInvoiced
			}
			amount := remaining
			if in.Amount != nil {
				if in.Amount.GreaterThan(remaining) {
					return ErrAmountExceedsRemaining
				}
				amount = *in.Amount
			}
			result, err = IssuePaidInvoice(ctx, tx, PaidInvoiceSpec{
				OwnerID:       ownerID,
				BookingID:     booking.ID,
				CustomerID:    booking.CustomerID,
				Amount:        amount,
				VATPercentage: settings.VATPercentage,
				Method:        in.PaymentMethod,
				Reference:     in.Reference,
				Notes:         in.Notes,
				IssuedAt:      s.now(),
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice issued", slog.Int64("owner_id", ownerID),
		slog.String("invoice", result.Invoice.Number), slog.String("amount", result.Invoice.TotalAmount.StringFixed(2)))
	if s.hooks != nil {
		s.hooks.InvoiceCreated(ctx, ownerID, result.Invoice.ID)
	}
	return result, nil
}

// RecordPayment stores a payment and, when it settles an invoice, reconciles
// that invoice after the payment commits.
func (s *Service) RecordPayment(ctx context.Context, ownerID int64, in RecordPaymentInput) (*PaymentResult, error) {
	if err := httpx.Validate(in); err != nil {
		return nil, err
	}
	amount := money.Round(in.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	method := in.PaymentMethod.OrDefault()
	if !method.IsValid() {
		return nil, ErrInvalidMethod
	}
	day := dateOnly(s.now())
	if in.PaymentDate != "" {
		parsed, err := time.Parse(time.DateOnly, in.PaymentDate)
		if err != nil {
			return nil, httpx.FieldErrors{"payment_date": "must be a valid date"}
		}
		day = parsed
	}
	if err := tenant.EnsureWritable(ctx, s.gate, ownerID); err != nil {
		return nil, err
	}

	var pay *Payment
	err := sequence.Retry(ctx, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			booking, err := tx.LockBooking(ctx, ownerID, in.BookingID)
			if err != nil {
				return err
			}
			if booking.IsDeleted {
				return ErrBookingClosed
			}
			if in.InvoiceID != nil {
				inv, err := tx.GetInvoice(ctx, ownerID, *in.InvoiceID)
				if err != nil {
					return err
				}
				if inv.BookingID != booking.ID {
					return ErrInvoiceBookingMismatch
				}
				if inv.Status == StatusCancelled {
					return ErrInvoiceCancelled
				}
			}
			number, err := tx.NextNumber(ctx, sequence.Payment, day.Year())
			if err != nil {
				return err
			}
			pay, err = tx.InsertPayment(ctx, Payment{
				OwnerID:     ownerID,
				Number:      number,
				BookingID:   booking.ID,
				InvoiceID:   in.InvoiceID,
				Amount:      amount,
				Method:      method,
				PaymentDate: day,
				Reference:   in.Reference,
				Notes:       in.Notes,
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	out := &PaymentResult{Payment: pay}
	if pay.InvoiceID != nil {
		inv, err := s.reconciler.Reconcile(ctx, ownerID, *pay.InvoiceID)
		if err != nil {
			return nil, err
		}
		out.Invoice = inv
	}
	if s.hooks != nil {
		s.hooks.PaymentCreated(ctx, ownerID, pay.ID)
	}
	return out, nil
}

// DeletePayment soft-deletes a payment and reconciles its invoice.
func (s *Service) DeletePayment(ctx context.Context, ownerID, paymentID int64) (*Invoice, error) {
	if err := tenant.EnsureWritable(ctx, s.gate, ownerID); err != nil {
		return nil, err
	}
	var invoiceID *int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pay, err := tx.GetPayment(ctx, ownerID, paymentID)
		if err != nil {
			return err
		}
		if pay.IsDeleted {
			return ErrPaymentNotFound
		}
		if pay.SyncedToQoyod {
			return ErrPaymentSynced
		}
		invoiceID = pay.InvoiceID
		return tx.SoftDeletePayment(ctx, ownerID, paymentID)
	})
	if err != nil {
		return nil, err
	}
	if invoiceID == nil {
		return nil, nil
	}
	return s.reconciler.Reconcile(ctx, ownerID, *invoiceID)
}

// CancelInvoice cancels an invoice that was never pushed to the accounting
// system. Synced invoices need a credit note instead.
func (s *Service) CancelInvoice(ctx context.Context, ownerID, invoiceID int64, reason string) (*Invoice, error) {
	if err := tenant.EnsureWritable(ctx, s.gate, ownerID); err != nil {
		return nil, err
	}
	var out *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, ownerID, invoiceID)
		if err != nil {
			return err
		}
		if inv.SyncedToQoyod {
			return ErrInvoiceSynced
		}
		if inv.Status == StatusCancelled {
			return ErrInvoiceCancelled
		}
		note := "Cancelled"
		if reason = strings.TrimSpace(reason); reason != "" {
			note += ": " + reason
		}
		if err := tx.CancelInvoice(ctx, ownerID, invoiceID, note); err != nil {
			return err
		}
		out, err = tx.GetInvoice(ctx, ownerID, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invoice cancelled", slog.Int64("owner_id", ownerID), slog.String("invoice", out.Number))
	return out, nil
}

// GetInvoice loads an invoice and its active payments concurrently.
func (s *Service) GetInvoice(ctx context.Context, ownerID, invoiceID int64) (*InvoiceDetail, error) {
	var detail InvoiceDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		inv, err := s.repo.GetInvoice(gctx, ownerID, invoiceID)
		detail.Invoice = inv
		return err
	})
	g.Go(func() error {
		pays, err := s.repo.ListPayments(gctx, ownerID, PaymentFilter{InvoiceID: invoiceID})
		detail.Payments = pays
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if detail.Payments == nil {
		detail.Payments = []Payment{}
	}
	return &detail, nil
}

// ListInvoices lists the tenant's invoices, optionally for one booking.
func (s *Service) ListInvoices(ctx context.Context, ownerID, bookingID int64) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, ownerID, bookingID)
}

// ListPayments lists the tenant's payments.
func (s *Service) ListPayments(ctx context.Context, ownerID int64, filter PaymentFilter) ([]Payment, error) {
	return s.repo.ListPayments(ctx, ownerID, filter)
}

// GetPayment loads one payment.
func (s *Service) GetPayment(ctx context.Context, ownerID, paymentID int64) (*Payment, error) {
	return s.repo.GetPayment(ctx, ownerID, paymentID)
}

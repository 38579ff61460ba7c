package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/customers"
	"github.com/hallbook/hallbook/internal/money"
	"github.com/hallbook/hallbook/internal/platform/httpx"
	"github.com/hallbook/hallbook/internal/sequence"
	"github.com/hallbook/hallbook/internal/tenant"
)

// BillingReader lists a booking's invoices and payments.
type BillingReader interface {
	ListInvoices(ctx context.Context, ownerID, bookingID int64) ([]billing.Invoice, error)
	ListPayments(ctx context.Context, ownerID int64, filter billing.PaymentFilter) ([]billing.Payment, error)
}

// Service provides booking business logic.
type Service struct {
	repo     Repository
	gate     tenant.WriteGate
	settings tenant.SettingsProvider
	billing  BillingReader
	hooks    billing.SyncHooks
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a booking service.
func NewService(repo Repository, gate tenant.WriteGate, settings tenant.SettingsProvider, reader BillingReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		gate:     gate,
		settings: settings,
		billing:  reader,
		logger:   logger,
		now:      time.Now,
	}
}

// SetSyncHooks attaches the accounting mirror notified after commit.
func (s *Service) SetSyncHooks(h billing.SyncHooks) {
	s.hooks = h
}

// draft carries a validated booking into the creation transaction.
type draft struct {
	ownerID       int64
	actorID       int64
	customerID    *int64
	customer      *customers.Details
	hallID        int64
	eventDate     time.Time
	start, end    time.Time
	guests        int
	services      Services
	quote         quote
	downPayment   decimal.Decimal
	method        billing.PaymentMethod
	vatPercentage decimal.Decimal
	status        Status
	source        Source
	notes         string
}

// CreateBooking records a staff booking. With a down payment the booking is
// CONFIRMED and a PAID invoice plus its payment are created in the same
// transaction; otherwise it is TENTATIVE.
func (s *Service) CreateBooking(ctx context.Context, actor tenant.Identity, in CreateInput) (*Created, error) {
	eventDate, err := in.validate()
	if err != nil {
		return nil, err
	}
	ownerID := actor.TenantID()
	if err := tenant.EnsureWritable(ctx, s.gate, ownerID); err != nil {
		return nil, err
	}
	settings, err := s.settings.Accounting(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	q, err := price(in.TotalAmount, in.DiscountAmount, in.VATAmount, settings.VATPercentage)
	if err != nil {
		return nil, err
	}
	down := money.Round(in.DownPayment)
	if down.GreaterThan(q.final) {
		return nil, ErrDownPaymentExceedsFinal
	}

	return s.create(ctx, draft{
		ownerID:       ownerID,
		actorID:       actor.UserID,
		customerID:    in.CustomerID,
		customer:      in.Customer,
		hallID:        in.HallID,
		eventDate:     eventDate,
		start:         in.StartTime,
		end:           in.EndTime,
		guests:        in.GuestCount,
		services:      in.Services,
		quote:         q,
		downPayment:   down,
		method:        in.PaymentMethod.OrDefault(),
		vatPercentage: settings.VATPercentage,
		status:        InitialStatus(down),
		source:        SourceStaff,
		notes:         in.Notes,
	})
}

// CreatePublicBooking records a PENDING booking sent through a hall's public
// link. The tenant is the hall's owner.
func (s *Service) CreatePublicBooking(ctx context.Context, token uuid.UUID, in PublicInput) (*Created, error) {
	eventDate, err := in.validate()
	if err != nil {
		return nil, err
	}
	hall, err := s.repo.HallByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := tenant.EnsureWritable(ctx, s.gate, hall.OwnerID); err != nil {
		return nil, err
	}
	details := in.Customer
	return s.create(ctx, draft{
		ownerID:   hall.OwnerID,
		customer:  &details,
		hallID:    hall.ID,
		eventDate: eventDate,
		start:     in.StartTime,
		end:       in.EndTime,
		guests:    in.GuestCount,
		services:  in.Services,
		status:    StatusPending,
		source:    SourcePublic,
		notes:     in.Notes,
	})
}

func (s *Service) create(ctx context.Context, d draft) (*Created, error) {
	var out *Created
	err := sequence.Retry(ctx, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			created, err := s.insert(ctx, tx, d)
			out = created
			return err
		})
	})
	if err != nil {
		if httpx.StatusOf(err) < 500 {
			return nil, err
		}
		s.logger.Error("booking creation rolled back", slog.Int64("owner_id", d.ownerID), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	s.logger.Info("booking created", slog.Int64("owner_id", d.ownerID),
		slog.String("booking", out.Booking.Number), slog.String("status", string(out.Booking.Status)))
	if out.Invoice != nil && s.hooks != nil {
		s.hooks.InvoiceCreated(ctx, d.ownerID, out.Invoice.ID)
	}
	return out, nil
}

func (s *Service) insert(ctx context.Context, tx TxRepository, d draft) (*Created, error) {
	if _, err := tx.GetHall(ctx, d.ownerID, d.hallID); err != nil {
		return nil, err
	}
	var (
		cust *customers.Customer
		err  error
	)
	if d.customerID != nil {
		cust, err = tx.Customers().Get(ctx, d.ownerID, *d.customerID)
	} else {
		cust, _, err = customers.FindOrCreate(ctx, tx.Customers(), d.ownerID, *d.customer)
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	number, err := tx.Billing().NextNumber(ctx, sequence.Booking, now.Year())
	if err != nil {
		return nil, err
	}
	b, err := tx.InsertBooking(ctx, Booking{
		OwnerID:        d.ownerID,
		Number:         number,
		HallID:         d.hallID,
		CustomerID:     cust.ID,
		EventDate:      d.eventDate,
		StartTime:      d.start,
		EndTime:        d.end,
		GuestCount:     d.guests,
		Services:       d.services,
		TotalAmount:    d.quote.total,
		DiscountAmount: d.quote.discount,
		DownPayment:    d.downPayment,
		VATAmount:      d.quote.vat,
		FinalAmount:    d.quote.final,
		ServiceRevenue: d.quote.final,
		VATMethod:      money.VATAdditive,
		Status:         d.status,
		Source:         d.source,
		Notes:          d.notes,
		CreatedBy:      d.actorID,
	})
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	if err := tx.AppendHistory(ctx, HistoryEntry{
		BookingID: b.ID,
		OwnerID:   d.ownerID,
		ToStatus:  b.Status,
		ActorID:   d.actorID,
		Note:      "created",
	}); err != nil {
		return nil, err
	}

	out := &Created{Booking: b, Customer: cust}
	if d.downPayment.IsPositive() {
		paid, err := billing.IssuePaidInvoice(ctx, tx.Billing(), billing.PaidInvoiceSpec{
			OwnerID:       d.ownerID,
			BookingID:     b.ID,
			CustomerID:    cust.ID,
			Amount:        d.downPayment,
			VATPercentage: d.vatPercentage,
			Method:        d.method,
			Notes:         "Down payment for " + b.Number,
			IssuedAt:      now,
		})
		if err != nil {
			return nil, err
		}
		out.Invoice, out.Payment = paid.Invoice, paid.Payment
	}
	return out, nil
}

// ChangeStatus moves the booking along the status machine and appends one
// history row.
func (s *Service) ChangeStatus(ctx context.Context, actor tenant.Identity, bookingID int64, in StatusInput) (*Booking, error) {
	if err := httpx.Validate(in); err != nil {
		return nil, err
	}
	if !in.Status.IsValid() {
		return nil, httpx.FieldErrors{"status": "is invalid"}
	}
	ownerID := actor.TenantID()
	if err := tenant.EnsureWritable(ctx, s.gate, ownerID); err != nil {
		return nil, err
	}
	var out *Booking
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.LockBooking(ctx, ownerID, bookingID)
		if err != nil {
			return err
		}
		if !CanTransition(b.Status, in.Status) {
			return ErrInvalidTransition
		}
		if err := tx.SetStatus(ctx, ownerID, bookingID, in.Status); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, HistoryEntry{
			BookingID:  bookingID,
			OwnerID:    ownerID,
			FromStatus: b.Status,
			ToStatus:   in.Status,
			ActorID:    actor.UserID,
			Note:       strings.TrimSpace(in.Note),
		}); err != nil {
			return err
		}
		b.Status = in.Status
		if in.Status == StatusCancelled {
			at := s.now()
			b.IsDeleted = true
			b.DeletedAt = &at
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking status changed", slog.Int64("owner_id", ownerID),
		slog.String("booking", out.Number), slog.String("status", string(out.Status)))
	return out, nil
}

// CancelBooking cancels and soft-deletes the booking.
func (s *Service) CancelBooking(ctx context.Context, actor tenant.Identity, bookingID int64, reason string) (*Booking, error) {
	return s.ChangeStatus(ctx, actor, bookingID, StatusInput{Status: StatusCancelled, Note: reason})
}

// UpdateBooking patches schedule, guests, services and money. The new final
// amount may not drop below what was already invoiced.
func (s *Service) UpdateBooking(ctx context.Context, actor tenant.Identity, bookingID int64, in UpdateInput) (*Booking, error) {
	if err := httpx.Validate(in); err != nil {
		return nil, err
	}
	ownerID := actor.TenantID()
	if err := tenant.EnsureWritable(ctx, s.gate, ownerID); err != nil {
		return nil, err
	}
	settings, err := s.settings.Accounting(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var out *Booking
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.LockBooking(ctx, ownerID, bookingID)
		if err != nil {
			return err
		}
		if b.IsDeleted || b.Status.IsTerminal() {
			return ErrBookingClosed
		}
		if err := s.applyPatch(ctx, tx, b, in, settings.VATPercentage); err != nil {
			return err
		}
		invoiced, err := tx.InvoicedTotal(ctx, ownerID, bookingID)
		if err != nil {
			return fmt.Errorf("invoiced total: %w", err)
		}
		if b.FinalAmount.LessThan(invoiced) {
			return ErrBelowInvoiced
		}
		if err := tx.UpdateBooking(ctx, *b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) applyPatch(ctx context.Context, tx TxRepository, b *Booking, in UpdateInput, vatPercentage decimal.Decimal) error {
	if in.HallID != nil && *in.HallID != b.HallID {
		if _, err := tx.GetHall(ctx, b.OwnerID, *in.HallID); err != nil {
			return err
		}
		b.HallID = *in.HallID
	}
	if in.EventDate != nil {
		d, err := parseDate("event_date", *in.EventDate)
		if err != nil {
			return err
		}
		b.EventDate = d
	}
	if in.StartTime != nil {
		b.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		b.EndTime = *in.EndTime
	}
	if !b.StartTime.Before(b.EndTime) {
		return httpx.FieldErrors{"end_time": "must be after start_time"}
	}
	if in.GuestCount != nil {
		b.GuestCount = *in.GuestCount
	}
	if in.Services != nil {
		b.Services = *in.Services
	}
	if in.Notes != nil {
		b.Notes = *in.Notes
	}

	if in.TotalAmount == nil && in.DiscountAmount == nil && in.VATAmount == nil {
		return nil
	}
	total, discount := b.TotalAmount, b.DiscountAmount
	if in.TotalAmount != nil {
		total = *in.TotalAmount
	}
	if in.DiscountAmount != nil {
		discount = *in.DiscountAmount
	}
	if in.VATAmount != nil && in.VATAmount.IsNegative() {
		return httpx.FieldErrors{"vat_amount": "must not be negative"}
	}
	q, err := price(total, discount, in.VATAmount, vatPercentage)
	if err != nil {
		return err
	}
	if b.DownPayment.GreaterThan(q.final) {
		return ErrDownPaymentExceedsFinal
	}
	b.TotalAmount, b.DiscountAmount, b.FinalAmount, b.VATAmount = q.total, q.discount, q.final, q.vat
	b.ServiceRevenue = q.final
	return nil
}

// GetBooking loads a booking with its customer, invoices and payments.
func (s *Service) GetBooking(ctx context.Context, ownerID, bookingID int64) (*Detail, error) {
	b, err := s.repo.GetBooking(ctx, ownerID, bookingID)
	if err != nil {
		return nil, err
	}
	detail := &Detail{Booking: b}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.repo.GetCustomer(gctx, ownerID, b.CustomerID)
		detail.Customer = c
		return err
	})
	g.Go(func() error {
		invs, err := s.billing.ListInvoices(gctx, ownerID, bookingID)
		detail.Invoices = invs
		return err
	})
	g.Go(func() error {
		pays, err := s.billing.ListPayments(gctx, ownerID, billing.PaymentFilter{BookingID: bookingID})
		detail.Payments = pays
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if detail.Invoices == nil {
		detail.Invoices = []billing.Invoice{}
	}
	if detail.Payments == nil {
		detail.Payments = []billing.Payment{}
	}
	invoiced := decimal.Zero
	for _, inv := range detail.Invoices {
		if inv.Status != billing.StatusCancelled {
			invoiced = invoiced.Add(inv.TotalAmount)
		}
	}
	detail.Remaining = b.FinalAmount.Sub(invoiced)
	return detail, nil
}

// ListBookings returns one page of bookings and the total count.
func (s *Service) ListBookings(ctx context.Context, ownerID int64, f Filter) ([]Booking, int, error) {
	return s.repo.ListBookings(ctx, ownerID, f)
}

// History returns the booking's status changes, oldest first.
func (s *Service) History(ctx context.Context, ownerID, bookingID int64) ([]HistoryEntry, error) {
	if _, err := s.repo.GetBooking(ctx, ownerID, bookingID); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, ownerID, bookingID)
}

package booking

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/customers"
	"github.com/hallbook/hallbook/internal/money"
	"github.com/hallbook/hallbook/internal/platform/httpx"
)

// CreateInput is the staff booking request.
type CreateInput struct {
	CustomerID     *int64                `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Customer       *customers.Details    `json:"customer,omitempty"`
	HallID         int64                 `json:"hall_id" validate:"required,gt=0"`
	EventDate      string                `json:"event_date" validate:"required,datetime=2006-01-02"`
	StartTime      time.Time             `json:"start_time" validate:"required"`
	EndTime        time.Time             `json:"end_time" validate:"required,gtfield=StartTime"`
	GuestCount     int                   `json:"guest_count" validate:"gte=0"`
	Services       Services              `json:"services"`
	TotalAmount    decimal.Decimal       `json:"total_amount"`
	DiscountAmount decimal.Decimal       `json:"discount_amount"`
	DownPayment    decimal.Decimal       `json:"down_payment"`
	VATAmount      *decimal.Decimal      `json:"vat_amount,omitempty"`
	PaymentMethod  billing.PaymentMethod `json:"payment_method,omitempty"`
	Notes          string                `json:"notes,omitempty" validate:"max=2000"`
}

// PublicInput is the self-service request sent through a hall's public link.
// Prices are set later by staff.
type PublicInput struct {
	Customer   customers.Details `json:"customer"`
	EventDate  string            `json:"event_date" validate:"required,datetime=2006-01-02"`
	StartTime  time.Time         `json:"start_time" validate:"required"`
	EndTime    time.Time         `json:"end_time" validate:"required,gtfield=StartTime"`
	GuestCount int               `json:"guest_count" validate:"gte=0"`
	Services   Services          `json:"services"`
	Notes      string            `json:"notes,omitempty" validate:"max=2000"`
}

// UpdateInput patches a booking. Nil fields are left unchanged.
type UpdateInput struct {
	HallID         *int64           `json:"hall_id,omitempty" validate:"omitempty,gt=0"`
	EventDate      *string          `json:"event_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartTime      *time.Time       `json:"start_time,omitempty"`
	EndTime        *time.Time       `json:"end_time,omitempty"`
	GuestCount     *int             `json:"guest_count,omitempty" validate:"omitempty,gte=0"`
	Services       *Services        `json:"services,omitempty"`
	TotalAmount    *decimal.Decimal `json:"total_amount,omitempty"`
	DiscountAmount *decimal.Decimal `json:"discount_amount,omitempty"`
	VATAmount      *decimal.Decimal `json:"vat_amount,omitempty"`
	Notes          *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// StatusInput requests a status change.
type StatusInput struct {
	Status Status `json:"status" validate:"required"`
	Note   string `json:"note,omitempty" validate:"max=500"`
}

// quote is the money of a booking computed from its input.
type quote struct {
	total, discount, final, vat decimal.Decimal
}

func nonNegative(fields httpx.FieldErrors, name string, d decimal.Decimal) {
	if d.IsNegative() {
		fields[name] = "must not be negative"
	}
}

// price applies the discount and derives the informational additive VAT
// unless an explicit amount is given.
func price(total, discount decimal.Decimal, vat *decimal.Decimal, vatPercentage decimal.Decimal) (quote, error) {
	final, err := money.ApplyDiscount(total, discount)
	if err != nil {
		if errors.Is(err, money.ErrDiscountExceedsTotal) {
			return quote{}, ErrDiscountExceedsTotal
		}
		return quote{}, httpx.FieldErrors{"total_amount": "must not be negative"}
	}
	q := quote{total: money.Round(total), discount: money.Round(discount), final: money.Round(final)}
	if vat != nil {
		q.vat = money.Round(*vat)
	} else {
		q.vat = money.AddVAT(final, vatPercentage).Rounded().VAT
	}
	return q, nil
}

func (in CreateInput) validate() (time.Time, error) {
	if err := httpx.Validate(in); err != nil {
		return time.Time{}, err
	}
	if in.CustomerID == nil && in.Customer == nil {
		return time.Time{}, ErrCustomerRequired
	}
	fields := httpx.FieldErrors{}
	nonNegative(fields, "total_amount", in.TotalAmount)
	nonNegative(fields, "discount_amount", in.DiscountAmount)
	nonNegative(fields, "down_payment", in.DownPayment)
	if in.VATAmount != nil {
		nonNegative(fields, "vat_amount", *in.VATAmount)
	}
	if !in.PaymentMethod.OrDefault().IsValid() {
		fields["payment_method"] = "is invalid"
	}
	if len(fields) > 0 {
		return time.Time{}, fields
	}
	return parseDate("event_date", in.EventDate)
}

func (in PublicInput) validate() (time.Time, error) {
	if err := httpx.Validate(in); err != nil {
		return time.Time{}, err
	}
	return parseDate("event_date", in.EventDate)
}

func parseDate(field, raw string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, httpx.FieldErrors{field: "must be a valid date"}
	}
	return d, nil
}

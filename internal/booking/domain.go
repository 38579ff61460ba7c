// Package booking records hall reservations, their money and status history,
// and issues the down-payment invoice in the same transaction.
package booking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/customers"
	"github.com/hallbook/hallbook/internal/money"
)

// Status enumerates booking states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusTentative Status = "TENTATIVE"
	StatusConfirmed Status = "CONFIRMED"
	StatusCheckedIn Status = "CHECKED_IN"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Source records who created the booking.
type Source string

const (
	SourceStaff  Source = "STAFF"
	SourcePublic Source = "PUBLIC"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusTentative, StatusConfirmed, StatusCancelled},
	StatusTentative: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCheckedIn, StatusCancelled},
	StatusCheckedIn: {StatusCompleted, StatusCancelled},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusTentative, StatusConfirmed, StatusCheckedIn, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InitialStatus is CONFIRMED when money was received up front. The down
// payment counts at its rounded value.
func InitialStatus(downPayment decimal.Decimal) Status {
	if money.Round(downPayment).IsPositive() {
		return StatusConfirmed
	}
	return StatusTentative
}

// Services are the countable extras ordered with a booking.
type Services struct {
	CoffeeServers int    `json:"coffee_servers" validate:"gte=0"`
	Sacrifices    int    `json:"sacrifices" validate:"gte=0"`
	WaterCartons  int    `json:"water_cartons" validate:"gte=0"`
	MealType      string `json:"meal_type,omitempty" validate:"max=64"`
	ExtraSections int    `json:"extra_sections" validate:"gte=0"`
}

// Booking is a reservation of a hall for an event.
type Booking struct {
	ID             int64           `json:"id"`
	OwnerID        int64           `json:"-"`
	Number         string          `json:"booking_number"`
	HallID         int64           `json:"hall_id"`
	CustomerID     int64           `json:"customer_id"`
	EventDate      time.Time       `json:"event_date"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        time.Time       `json:"end_time"`
	GuestCount     int             `json:"guest_count"`
	Services       Services        `json:"services"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DownPayment    decimal.Decimal `json:"down_payment"`
	VATAmount      decimal.Decimal `json:"vat_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	ServiceRevenue decimal.Decimal `json:"service_revenue"`
	VATMethod      money.VATMethod `json:"vat_method"`
	Status         Status          `json:"status"`
	Source         Source          `json:"source"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      int64           `json:"created_by,omitempty"`
	IsDeleted      bool            `json:"is_deleted"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HistoryEntry is one append-only status change.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	BookingID  int64     `json:"booking_id"`
	OwnerID    int64     `json:"-"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorID    int64     `json:"actor_id"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Hall is the read-only slice of a hall that bookings need.
type Hall struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"-"`
	Name        string    `json:"name"`
	PublicToken uuid.UUID `json:"-"`
	Capacity    int       `json:"capacity"`
	IsActive    bool      `json:"is_active"`
}

// Created is the result of a booking creation.
type Created struct {
	Booking  *Booking            `json:"booking"`
	Customer *customers.Customer `json:"customer"`
	Invoice  *billing.Invoice    `json:"invoice,omitempty"`
	Payment  *billing.Payment    `json:"payment,omitempty"`
}

// Detail is a booking with its customer, invoices and payments.
type Detail struct {
	Booking   *Booking            `json:"booking"`
	Customer  *customers.Customer `json:"customer,omitempty"`
	Invoices  []billing.Invoice   `json:"invoices"`
	Payments  []billing.Payment   `json:"payments"`
	Remaining decimal.Decimal     `json:"remaining_to_invoice"`
}

// Filter narrows ListBookings.
type Filter struct {
	Status         Status
	HallID         int64
	CustomerID     int64
	From           *time.Time
	To             *time.Time
	IncludeDeleted bool
	Limit          int
	Offset         int
}

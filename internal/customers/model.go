// Package customers stores the tenant's customer directory.
package customers

import (
	"time"

	"github.com/hallbook/hallbook/internal/platform/httpx"
)

// ErrNotFound indicates the customer does not exist for the tenant.
var ErrNotFound = httpx.NewError(httpx.ErrNotFound, "customer not found")

// Customer is a tenant-scoped customer record.
type Customer struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"-"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	NationalID      *string    `json:"national_id,omitempty"`
	Email           *string    `json:"email,omitempty"`
	QoyodCustomerID *string    `json:"qoyod_customer_id,omitempty"`
	SyncedToQoyod   bool       `json:"synced_to_qoyod"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RemoteID returns the stored accounting id, or "" when never synced.
func (c Customer) RemoteID() string {
	if c.QoyodCustomerID == nil {
		return ""
	}
	return *c.QoyodCustomerID
}

// Details are the inline fields accepted when creating a customer.
type Details struct {
	Name       string `json:"name" validate:"required,max=200"`
	Phone      string `json:"phone" validate:"required,min=5,max=32"`
	NationalID string `json:"national_id,omitempty" validate:"omitempty,max=32"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
}

package customers

import (
	"context"
	"errors"
)

// Store is the subset of Queries used to resolve a booking's customer.
type Store interface {
	Get(ctx context.Context, ownerID, id int64) (*Customer, error)
	FindByPhoneOrNationalID(ctx context.Context, ownerID int64, phone, nationalID string) (*Customer, error)
	Create(ctx context.Context, ownerID int64, d Details) (*Customer, error)
}

// FindOrCreate returns the tenant's customer matching d by phone or national
// id, creating one when nothing matches. created reports which happened.
func FindOrCreate(ctx context.Context, store Store, ownerID int64, d Details) (c *Customer, created bool, err error) {
	c, err = store.FindByPhoneOrNationalID(ctx, ownerID, d.Phone, d.NationalID)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	c, err = store.Create(ctx, ownerID, d)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

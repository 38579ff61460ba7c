// Package tenant resolves who is calling, which tenant they act for, and
// whether that tenant may currently write.
package tenant

import (
	"context"

	"github.com/hallbook/hallbook/internal/platform/httpx"
)

// Role is the caller's platform role.
type Role string

const (
	RoleOwner      Role = "OWNER"
	RoleStaff      Role = "STAFF"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

var (
	ErrUnauthenticated = httpx.NewError(httpx.ErrUnauthorized, "missing or invalid credentials")
	ErrWriteNotAllowed = httpx.NewError(httpx.ErrForbidden, "subscription expired; writes are disabled")
)

// Identity is the resolved caller. OwnerID is zero for tenant owners, whose
// own user id is the tenant id.
type Identity struct {
	UserID  int64 `json:"user_id"`
	OwnerID int64 `json:"owner_id,omitempty"`
	Role    Role  `json:"role"`
}

// TenantID returns the id every tenant-scoped query filters on.
func (i Identity) TenantID() int64 {
	if i.OwnerID != 0 {
		return i.OwnerID
	}
	return i.UserID
}

// IsSuperAdmin reports whether the caller may act for any tenant.
func (i Identity) IsSuperAdmin() bool {
	return i.Role == RoleSuperAdmin
}

type identityKey struct{}

// WithIdentity stores the identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext extracts the identity stored by the middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != 0
}

// OwnerOf returns the tenant id of the authenticated caller.
func OwnerOf(ctx context.Context) (int64, error) {
	id, ok := FromContext(ctx)
	if !ok || id.TenantID() <= 0 {
		return 0, ErrUnauthenticated
	}
	return id.TenantID(), nil
}

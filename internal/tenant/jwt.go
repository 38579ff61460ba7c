package tenant

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hallbook/hallbook/internal/platform/httpx"
)

// Resolver turns an inbound request into an Identity.
type Resolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// Claims is the bearer token payload. Subject carries the user id.
type Claims struct {
	OwnerID int64  `json:"owner_id,omitempty"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// TenantHeader lets a super admin pick the tenant to act for.
const TenantHeader = "X-Tenant-ID"

// JWTResolver validates HS256 bearer tokens.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver builds a resolver for the shared secret.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// Resolve implements Resolver.
func (j *JWTResolver) Resolve(r *http.Request) (Identity, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok || token == "" {
		return Identity{}, ErrUnauthenticated
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, ErrUnauthenticated
	}
	id := Identity{UserID: userID, OwnerID: claims.OwnerID, Role: Role(claims.Role)}
	if id.IsSuperAdmin() {
		if hdr := r.Header.Get(TenantHeader); hdr != "" {
			tenantID, err := strconv.ParseInt(hdr, 10, 64)
			if err != nil || tenantID <= 0 {
				return Identity{}, httpx.FieldErrors{TenantHeader: "must be a positive integer"}
			}
			id.OwnerID = tenantID
		}
	}
	return id, nil
}

// IssueToken signs a token for id. Used by operator tooling and tests.
func (j *JWTResolver) IssueToken(id Identity, ttl time.Duration) (string, error) {
	if id.UserID <= 0 {
		return "", errors.New("tenant: user id required")
	}
	now := time.Now()
	claims := Claims{
		OwnerID: id.OwnerID,
		Role:    string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Middleware rejects requests without a resolvable identity.
func Middleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r)
			if err != nil {
				httpx.RespondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

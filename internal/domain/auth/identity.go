package auth

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthenticated is returned when an operation needs a signed-in user.
	ErrUnauthenticated = errors.New("user is not authenticated")
	// ErrForbidden is returned when the caller may not touch a resource.
	ErrForbidden = errors.New("forbidden")
)

// Role is the authorization level of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity describes the caller of a storefront operation. It is resolved
// once per request and passed to services explicitly.
type Identity struct {
	// UserID is empty for anonymous callers.
	UserID string
	Role   Role
	// SessionCartID is the opaque token identifying an anonymous cart.
	SessionCartID string
}

// IsAuthenticated reports whether the caller is signed in.
func (i Identity) IsAuthenticated() bool {
	return i.UserID != ""
}

// IsAdmin reports whether the caller is a signed-in administrator.
func (i Identity) IsAdmin() bool {
	return i.IsAuthenticated() && i.Role == RoleAdmin
}

// CanAccess reports whether the caller may read a resource owned by ownerID.
func (i Identity) CanAccess(ownerID string) bool {
	return i.IsAdmin() || (i.IsAuthenticated() && i.UserID == ownerID)
}

type identityKey struct{}

// WithIdentity attaches id to ctx for transport layers.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, or an anonymous
// identity.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

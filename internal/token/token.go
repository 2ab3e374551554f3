// Package token issues and verifies HS256 session tokens.
package token

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/kart-storefront/internal/domain/auth"
)

// ErrInvalid is returned for malformed, expired or wrongly signed tokens.
var ErrInvalid = errors.New("invalid token")

const issuer = "kart-storefront"

// Claims is the payload of a session token. The subject is the user id.
type Claims struct {
	Role auth.Role `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens with a shared secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a Manager. ttl is the lifetime of issued tokens.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for a user.
func (m *Manager) Issue(userID string, role auth.Role) (string, error) {
	now := m.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return s, nil
}

// Verify parses a token and returns the identity it carries. The session
// cart id is not part of the token and is left empty.
func (m *Manager) Verify(raw string) (auth.Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return auth.Identity{}, errors.Wrap(ErrInvalid, err.Error())
	}
	if claims.Subject == "" {
		return auth.Identity{}, errors.Wrap(ErrInvalid, "missing subject")
	}

	role := claims.Role
	if role != auth.RoleAdmin {
		role = auth.RoleUser
	}
	return auth.Identity{UserID: claims.Subject, Role: role}, nil
}

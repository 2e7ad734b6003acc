// Package auth resolves the caller identity from HS256 bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the kind of caller.
type Role string

const (
	RoleWellwisher Role = "wellwisher"
	RoleAdmin      Role = "admin"
	RoleBuyer      Role = "buyer"
)

func (r Role) valid() bool {
	return r == RoleWellwisher || r == RoleAdmin || r == RoleBuyer
}

// Principal represents the authenticated caller.
type Principal struct {
	ID   uuid.UUID
	Role Role
}

// IsAdmin reports whether the caller may act on any resource.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

type principalKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from context (if any).
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

type claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// ParseBearer extracts and validates a token from an Authorization header value.
func ParseBearer(header, secret string) (*Principal, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, errors.New("invalid authorization header")
	}
	return Parse(strings.TrimSpace(parts[1]), secret)
}

// Parse validates a signed token and returns its principal.
func Parse(tokenStr, secret string) (*Principal, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}

	tok, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return nil, err
	}

	c, _ := tok.Claims.(*claims)
	if c == nil || !c.Role.valid() {
		return nil, errors.New("invalid claims")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	return &Principal{ID: id, Role: c.Role}, nil
}

// Issue signs a token for p that expires after ttl.
func Issue(p Principal, secret string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	if !p.Role.valid() {
		return "", fmt.Errorf("unknown role %q", p.Role)
	}

	c := claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// Package auth signs users in against the registered-users repository and
// keeps the session token under the token key.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"clinic-booking/internal/model"
)

// Issuer is written into every session token and required when parsing.
const Issuer = "clinic-booking"

var (
	ErrBadToken = errors.New("invalid token")
	ErrBadHash  = errors.New("stored password hash is unreadable")
	ErrNoSecret = errors.New("JWT_SECRET is not set")
)

// TokenTTL is how long a session token stays valid.
var TokenTTL = 7 * 24 * time.Hour

// bcryptCost is lowered in tests.
var bcryptCost = bcrypt.DefaultCost

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// CheckPassword reports whether pw matches hash. A hash bcrypt cannot read
// is an ErrBadHash error, not a mismatch.
func CheckPassword(hash, pw string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, errors.Join(ErrBadHash, err)
	}
}

// Claims carries the role next to the registered claims. The user id is the
// token subject.
type Claims struct {
	Role model.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string { return c.Subject }

func MakeToken(uid string, role model.Role, secret string) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	c := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
}

// ParseToken accepts only HS256 tokens from this issuer that carry an
// expiry and a subject.
func ParseToken(raw, secret string) (*Claims, error) {
	if secret == "" {
		return nil, errors.Join(ErrBadToken, ErrNoSecret)
	}
	var c Claims
	_, err := parser().ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Join(ErrBadToken, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrBadToken)
	}
	return &c, nil
}

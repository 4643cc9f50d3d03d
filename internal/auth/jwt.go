// Package auth provides JWT issuing and verification for the gateway.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthDisabled is returned when no signing secret is configured.
var ErrAuthDisabled = errors.New("auth disabled")

// ErrInvalidToken is returned for malformed, expired or mis-signed
// tokens.
var ErrInvalidToken = errors.New("invalid token")

// JWTService handles token signing and verification.
type JWTService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewJWTService builds a JWT helper with the given secret and expiry.
// A zero expiry issues tokens that never expire.
func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// Enabled reports whether a signing secret is configured.
func (s *JWTService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

type claims struct {
	jwt.RegisteredClaims
}

// Generate issues a signed token for the given subject.
func (s *JWTService) Generate(subject string) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject required")
	}

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	if s.expiry > 0 {
		c.ExpiresAt = jwt.NewNumericDate(s.now().Add(s.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(s.secret)
}

// Validate parses a token and returns its subject.
func (s *JWTService) Validate(token string) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || strings.TrimSpace(c.Subject) == "" {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}

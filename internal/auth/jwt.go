// Package auth verifies bearer tokens presented at the C8 WebSocket
// handshake; the legacy REST facade does not check tokens. Issuance is out of scope (per
// spec.md §1, the operator identity system is external); this package only
// validates tokens minted elsewhere against a shared secret.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrDisabled is returned when no secret is configured; every token is
	// treated as anonymous rather than rejected outright, matching the
	// spec's "unauthenticated connection is accepted" handshake rule.
	ErrDisabled = errors.New("auth: no secret configured")
	// ErrInvalidToken covers any parse, signature, or claim failure.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims is the subset of registered claims this service relies on: the
// subject identifies the operator user_id a connection authenticates as.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates HS256 JWTs against a single shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether a secret was configured; callers use this to
// decide whether an unauthenticated connection should be accepted as
// anonymous (per spec.md §4.8) rather than rejected.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify parses and validates a token, returning the subject (user_id)
// claim.
func (v *Verifier) Verify(token string) (string, error) {
	if !v.Enabled() {
		return "", ErrDisabled
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}

// Expired reports whether a Verify error was specifically an expiry
// failure rather than any other rejection.
func Expired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

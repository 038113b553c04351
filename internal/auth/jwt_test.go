package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestVerifier_Disabled(t *testing.T) {
	v := NewVerifier("")
	if v.Enabled() {
		t.Fatal("expected verifier with empty secret to be disabled")
	}
	if _, err := v.Verify("anything"); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestVerifier_ValidToken(t *testing.T) {
	v := NewVerifier("s3cret")
	token := sign(t, "s3cret", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	sub, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sub != "operator-1" {
		t.Fatalf("expected subject operator-1, got %q", sub)
	}
}

func TestVerifier_WrongSecretRejected(t *testing.T) {
	v := NewVerifier("s3cret")
	token := sign(t, "other-secret", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "operator-1"},
	})

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifier_ExpiredToken(t *testing.T) {
	v := NewVerifier("s3cret")
	token := sign(t, "s3cret", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := v.Verify(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if !Expired(err) {
		t.Fatalf("expected Expired(err) to be true, got false for %v", err)
	}
}

func TestVerifier_EmptySubjectRejected(t *testing.T) {
	v := NewVerifier("s3cret")
	token := sign(t, "s3cret", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for empty subject, got %v", err)
	}
}

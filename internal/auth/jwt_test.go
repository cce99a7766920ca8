package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParse(t *testing.T) {
	t.Parallel()

	tm, err := NewTokenManager("s3cret", time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	tok, exp, err := tm.Issue("ops", RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if time.Until(exp) <= 0 {
		t.Fatalf("expiry in the past: %v", exp)
	}

	claims, err := tm.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if claims.Role != RoleAdmin || claims.Subject != "ops" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	tm, _ := NewTokenManager("s3cret", time.Hour)
	other, _ := NewTokenManager("different", time.Hour)

	foreign, _, err := other.Issue("ops", RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	expired, _ := NewTokenManager("s3cret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	old, _, err := expired.Issue("ops", RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	for name, tok := range map[string]string{
		"foreign secret": foreign,
		"expired":        old,
		"alg none":       none,
		"garbage":        "not.a.jwt",
	} {
		if _, err := tm.Parse(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}

	if _, err := NewTokenManager("", time.Hour); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

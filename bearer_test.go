package accounts

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestBearerTokensRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := &BearerTokens{Secret: []byte("0123456789abcdef0123456789abcdef"), Issuer: "accounts", Now: func() time.Time { return now }}

	token, expiresAt, err := b.Issue(&Account{IdentityKey: "alice@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expiresAt.Equal(now.Add(DefaultBearerTTL)) {
		t.Errorf("expected default ttl, expires %v", expiresAt)
	}
	key, err := b.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if key != "alice@example.com" {
		t.Errorf("expected subject alice@example.com, got %q", key)
	}

	other, _, _ := b.Issue(&Account{IdentityKey: "alice@example.com"})
	if other == token {
		t.Error("expected unique token ids")
	}
}

func TestBearerTokensRejects(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	secret := []byte("0123456789abcdef0123456789abcdef")
	b := &BearerTokens{Secret: secret, Issuer: "accounts", TTL: time.Minute, Now: func() time.Time { return now }}
	valid, _, err := b.Issue(&Account{IdentityKey: "k"})
	if err != nil {
		t.Fatal(err)
	}

	otherIssuer := &BearerTokens{Secret: secret, Issuer: "elsewhere", Now: b.Now}
	foreign, _, _ := otherIssuer.Issue(&Account{IdentityKey: "k"})

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "k", Issuer: "accounts",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "k", Issuer: "accounts"}).SignedString(secret)

	tests := []struct {
		name  string
		token string
		at    time.Time
	}{
		{"garbage", "not.a.jwt", now},
		{"tampered", valid[:len(valid)-2] + "xx", now},
		{"expired", valid, now.Add(2 * time.Minute)},
		{"wrong issuer", foreign, now},
		{"alg none", unsigned, now},
		{"no expiry", noExpiry, now},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			at := tc.at
			verifier := &BearerTokens{Secret: secret, Issuer: "accounts", Now: func() time.Time { return at }}
			if _, err := verifier.Verify(tc.token); !errors.Is(err, ErrInvalidBearerToken) {
				t.Errorf("expected ErrInvalidBearerToken, got %v", err)
			}
		})
	}
}

func TestBearerTokensNeedSecret(t *testing.T) {
	_, _, err := (&BearerTokens{}).Issue(&Account{IdentityKey: "k"})
	if err == nil || !strings.Contains(err.Error(), "secret") {
		t.Errorf("expected empty secret error, got %v", err)
	}
}

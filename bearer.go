package accounts

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultBearerTTL is the lifetime of issued access tokens.
const DefaultBearerTTL = 15 * time.Minute

// BearerTokens issues and checks HS256 access tokens whose subject is the
// account's identity key. They let API and gRPC clients carry a session
// without cookies.
type BearerTokens struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

func (b *BearerTokens) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Issue signs a token for a.
func (b *BearerTokens) Issue(a *Account) (token string, expiresAt time.Time, err error) {
	if len(b.Secret) == 0 {
		return "", time.Time{}, errors.New("bearer tokens: empty signing secret")
	}
	ttl := b.TTL
	if ttl <= 0 {
		ttl = DefaultBearerTTL
	}
	now := b.now()
	expiresAt = now.Add(ttl)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   a.IdentityKey,
		Issuer:    b.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign bearer token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks signature, issuer and expiry and returns the identity key.
func (b *BearerTokens) Verify(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(b.now),
	}
	if b.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(b.Issuer))
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return b.Secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidBearerToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: subject not found", ErrInvalidBearerToken)
	}
	return claims.Subject, nil
}

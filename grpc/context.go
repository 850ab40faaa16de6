// Package grpc carries account authentication into gRPC services. Clients
// send a bearer token in the "authorization" metadata; the interceptors
// verify it and place the resolved account on the handler's context.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	ac "github.com/panyam/accounts"
)

const (
	// DefaultMetadataKeyAuthorization is the metadata key holding "Bearer <token>".
	DefaultMetadataKeyAuthorization = "authorization"

	bearerPrefix = "Bearer "
)

// Config holds the metadata key configuration for auth context.
type Config struct {
	// Defaults to "authorization".
	MetadataKeyAuthorization string
}

func DefaultConfig() *Config {
	return &Config{MetadataKeyAuthorization: DefaultMetadataKeyAuthorization}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

// BearerTokenFromContext extracts the bearer token from incoming metadata.
// Returns empty string if none was sent.
func BearerTokenFromContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get(config.MetadataKeyAuthorization) {
		if token, ok := strings.CutPrefix(value, bearerPrefix); ok && token != "" {
			return token
		}
	}
	return ""
}

// BearerToOutgoingContext attaches token to outgoing gRPC metadata.
func BearerToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, bearerPrefix+token)
}

// AccountFromContext returns the account resolved by the interceptor.
func AccountFromContext(ctx context.Context) (*ac.Account, bool) {
	return ac.AccountFromContext(ctx)
}

// IsAuthenticated returns true if the interceptor resolved an account.
func IsAuthenticated(ctx context.Context) bool {
	_, ok := AccountFromContext(ctx)
	return ok
}

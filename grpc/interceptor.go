package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ac "github.com/panyam/accounts"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	*Config

	Bearer *ac.BearerTokens
	Binder *ac.SessionBinder

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but AccountFromContext reports none.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool

	Logger *slog.Logger
}

// NewInterceptorConfig returns a config that requires auth for all methods
// except publicMethods.
func NewInterceptorConfig(bearer *ac.BearerTokens, binder *ac.SessionBinder, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Config:        DefaultConfig(),
		Bearer:        bearer,
		Binder:        binder,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

func (c *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if c == nil {
		c = &InterceptorConfig{RequireAuth: true}
	}
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that resolves the
// caller's account from its bearer token.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = config.ensureDefaults()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, config, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor is the streaming counterpart of UnaryAuthInterceptor.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = config.ensureDefaults()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), config, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}

// authenticate returns ctx with the caller's account attached. Invalid
// tokens are rejected even on public methods.
func authenticate(ctx context.Context, config *InterceptorConfig, method string) (context.Context, error) {
	required := config.RequireAuth && !config.PublicMethods[method]
	token := BearerTokenFromContext(ctx, config.Config)
	if token == "" {
		if required {
			return ctx, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}
	if config.Bearer == nil || config.Binder == nil {
		return ctx, status.Error(codes.Internal, "bearer authentication not configured")
	}

	key, err := config.Bearer.Verify(token)
	if err != nil {
		config.Logger.WarnContext(ctx, "rejected bearer token", "method", method, "error", err)
		return ctx, status.Error(codes.Unauthenticated, "invalid bearer token")
	}
	account, err := config.Binder.Resolve(ctx, key)
	switch {
	case errors.Is(err, ac.ErrSessionInvalid):
		return ctx, status.Error(codes.Unauthenticated, "unknown account")
	case err != nil:
		config.Logger.ErrorContext(ctx, "resolving bearer account", "method", method, "error", err)
		return ctx, status.Error(codes.Unavailable, "account storage unavailable")
	}
	return ac.WithAccount(ctx, account), nil
}

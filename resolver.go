package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/panyam/accounts"

// Resolver turns credentials, federated profiles and verification tokens into
// outcomes. It holds no per-account state; the store is the only shared
// resource and is expected to enforce identity key uniqueness.
type Resolver struct {
	Store    AccountStore
	Hasher   PasswordHasher
	Notifier Notifier

	// Defaults to GenerateSecureToken
	NewToken TokenGenerator

	// Defaults to time.Now
	Now func() time.Time

	Logger *slog.Logger

	// MaskLoginFailures reports unknown emails and wrong passwords alike as
	// InvalidCredentials so callers cannot learn which emails are registered.
	MaskLoginFailures bool

	tracer     trace.Tracer
	dummyOnce  sync.Once
	dummyHash  string
	defaultsMu sync.Mutex
}

// NewResolver returns a resolver with bcrypt hashing and secure tokens.
func NewResolver(store AccountStore, notifier Notifier) *Resolver {
	return (&Resolver{Store: store, Notifier: notifier}).EnsureDefaults()
}

// EnsureDefaults fills in unset collaborators.
func (r *Resolver) EnsureDefaults() *Resolver {
	r.defaultsMu.Lock()
	defer r.defaultsMu.Unlock()
	if r.Hasher == nil {
		r.Hasher = NewBcryptHasher(DefaultBcryptCost)
	}
	if r.NewToken == nil {
		r.NewToken = GenerateSecureToken
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	if r.Notifier == nil {
		r.Notifier = &ConsoleEmailSender{Logger: r.Logger}
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(instrumentationName)
	}
	return r
}

func (r *Resolver) now() time.Time {
	return r.Now().UTC()
}

func (r *Resolver) begin(ctx context.Context, op string) (context.Context, trace.Span) {
	r.EnsureDefaults()
	return r.tracer.Start(ctx, "accounts."+op)
}

// end records the outcome on the span and logs it at the severity its class
// calls for.
func (r *Resolver) end(ctx context.Context, span trace.Span, op string, o Outcome) Outcome {
	defer span.End()
	span.SetAttributes(attribute.String("accounts.outcome", o.Kind.String()))
	switch o.Kind {
	case OutcomeRejected:
		span.SetAttributes(attribute.String("accounts.reason", string(o.Reason())))
		r.Logger.DebugContext(ctx, "attempt rejected", "op", op, "reason", o.Reason())
	case OutcomeFailed:
		span.RecordError(o.Err)
		span.SetStatus(codes.Error, o.Err.Error())
		r.Logger.ErrorContext(ctx, "collaborator failure", "op", op, "err", o.Err)
	default:
		if o.Account != nil {
			span.SetAttributes(attribute.String("accounts.provider", string(o.Account.Provider())))
		}
	}
	return o
}

func storageFailure(a *Account, err error) Outcome {
	return failed(a, fmt.Errorf("%w: %w", ErrStorageUnavailable, err))
}

func mailFailure(a *Account, err error) Outcome {
	return failed(a, fmt.Errorf("%w: %w", ErrMailUnavailable, err))
}

func internalFailure(err error) Outcome {
	return failed(nil, fmt.Errorf("%w: %w", ErrInternal, err))
}

// authenticate records a login event: one increment and a last-seen touch in
// a single store update.
func (r *Resolver) authenticate(ctx context.Context, key string, update AccountUpdate) Outcome {
	now := r.now()
	update.LoginIncrement = 1
	update.LastSeenAt = &now
	account, err := r.Store.Update(ctx, key, update)
	if err != nil {
		return r.updateFailure(err)
	}
	return authenticated(account)
}

func (r *Resolver) updateFailure(err error) Outcome {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return rejected(ReasonNotExisted, "account no longer exists", "")
	case errors.Is(err, ErrTokenMismatch):
		return rejected(ReasonUnknownToken, "verification token is no longer valid", "token")
	}
	return storageFailure(nil, err)
}

// dummyDigest is compared against when an email is unknown so masked logins
// take roughly as long as real ones.
func (r *Resolver) dummyDigest() string {
	r.dummyOnce.Do(func() {
		r.dummyHash, _ = r.Hasher.Hash("Unused-passw0rd!")
	})
	return r.dummyHash
}

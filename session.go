package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SessionBinder maps authenticated accounts to the value stored in a session
// and back. The session holds only the identity key; everything else is read
// from the store on each request so later updates are visible immediately.
type SessionBinder struct {
	Store  AccountStore
	Now    func() time.Time
	Logger *slog.Logger
}

func NewSessionBinder(store AccountStore) *SessionBinder {
	return &SessionBinder{Store: store}
}

// Bind returns the session value for a.
func (b *SessionBinder) Bind(a *Account) string {
	return a.IdentityKey
}

// Resolve loads the account behind a session value and touches its
// LastSeenAt. Sessions naming a missing account yield ErrSessionInvalid and
// should be dropped by the caller.
func (b *SessionBinder) Resolve(ctx context.Context, key string) (*Account, error) {
	if key == "" {
		return nil, ErrSessionInvalid
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	seen := now().UTC()
	account, err := b.Store.Update(ctx, key, AccountUpdate{LastSeenAt: &seen})
	if errors.Is(err, ErrAccountNotFound) {
		b.logger().InfoContext(ctx, "session for unknown account", "identity_key", key)
		return nil, ErrSessionInvalid
	} else if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return account, nil
}

func (b *SessionBinder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

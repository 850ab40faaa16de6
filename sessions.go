package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexedwards/scs/v2"
)

// DefaultSessionKey is the session entry holding the bound identity key.
const DefaultSessionKey = "loggedInIdentityKey"

// Sessions keeps the logged in account in an scs session. Handlers using it
// must be wrapped with Manager.LoadAndSave.
type Sessions struct {
	Manager *scs.SessionManager
	Binder  *SessionBinder
	Key     string
}

func NewSessions(manager *scs.SessionManager, binder *SessionBinder) *Sessions {
	return &Sessions{Manager: manager, Binder: binder, Key: DefaultSessionKey}
}

func (s *Sessions) key() string {
	if s.Key == "" {
		return DefaultSessionKey
	}
	return s.Key
}

// Login binds a to the current session. The session token is renewed first so
// a pre-login token cannot be fixated.
func (s *Sessions) Login(ctx context.Context, a *Account) error {
	if err := s.Manager.RenewToken(ctx); err != nil {
		return fmt.Errorf("renew session token: %w", err)
	}
	s.Manager.Put(ctx, s.key(), s.Binder.Bind(a))
	return nil
}

// Logout destroys the current session.
func (s *Sessions) Logout(ctx context.Context) error {
	return s.Manager.Destroy(ctx)
}

// Current returns the account bound to the session. It returns ErrNoSession
// when nothing is bound and destroys sessions pointing at vanished accounts.
func (s *Sessions) Current(ctx context.Context) (*Account, error) {
	key := s.Manager.GetString(ctx, s.key())
	if key == "" {
		return nil, ErrNoSession
	}
	account, err := s.Binder.Resolve(ctx, key)
	if errors.Is(err, ErrSessionInvalid) {
		if derr := s.Manager.Destroy(ctx); derr != nil {
			return nil, errors.Join(err, derr)
		}
	}
	return account, err
}

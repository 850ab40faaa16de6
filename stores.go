package accounts

import (
	"context"
	"fmt"
	"time"
)

// AccountStore is the persistence contract the resolver depends on.
//
// Implementations must enforce uniqueness of IdentityKey themselves: Create
// returns ErrAccountExists when the key is already taken, even when two
// creates race. Updates to one account must be linearizable.
type AccountStore interface {
	// FindByKey returns the account for an identity key or ErrAccountNotFound.
	FindByKey(ctx context.Context, key string) (*Account, error)

	// FindByVerificationToken returns the account whose pending token equals
	// token, or ErrAccountNotFound.
	FindByVerificationToken(ctx context.Context, token string) (*Account, error)

	// Create inserts a new account or returns ErrAccountExists.
	Create(ctx context.Context, account *Account) error

	// Update applies a partial update and returns the updated account.
	// Returns ErrAccountNotFound for unknown keys and ErrTokenMismatch when the
	// IfVerificationToken precondition does not hold.
	Update(ctx context.Context, key string, update AccountUpdate) (*Account, error)

	// Count returns the number of accounts matching filter.
	Count(ctx context.Context, filter CountFilter) (int, error)
}

// AccountUpdate lists the mutable fields of an account. Nil fields are left
// untouched.
type AccountUpdate struct {
	DisplayName  *string
	PasswordHash *string
	Verified     *bool

	// VerificationToken replaces the pending token. An empty string clears it.
	VerificationToken *string

	LastSeenAt *time.Time

	// LoginIncrement is added to LoginCount atomically. Never negative.
	LoginIncrement int

	// IfVerificationToken makes the update conditional on the current pending
	// token being equal to this value.
	IfVerificationToken *string
}

// Apply mutates r in place. Stores that hold records in memory share this so
// the semantics stay identical across backends.
func (u AccountUpdate) Apply(r *Record) error {
	if u.IfVerificationToken != nil && r.VerificationToken != *u.IfVerificationToken {
		return ErrTokenMismatch
	}
	if u.LoginIncrement < 0 {
		return fmt.Errorf("negative login increment %d", u.LoginIncrement)
	}
	if (u.PasswordHash != nil || (u.VerificationToken != nil && *u.VerificationToken != "")) && r.Provider != ProviderLocal {
		return fmt.Errorf("%w: local secret on %s account", ErrInvalidRecord, r.Provider)
	}
	if u.DisplayName != nil {
		r.DisplayName = *u.DisplayName
	}
	if u.PasswordHash != nil {
		r.PasswordHash = *u.PasswordHash
	}
	if u.Verified != nil {
		r.Verified = *u.Verified
	}
	if u.VerificationToken != nil {
		r.VerificationToken = *u.VerificationToken
	}
	if u.LastSeenAt != nil {
		r.LastSeenAt = *u.LastSeenAt
	}
	r.LoginCount += u.LoginIncrement
	return nil
}

// CountFilter narrows Count. Nil fields match everything.
type CountFilter struct {
	Provider *Provider
	Verified *bool
}

// Matches reports whether r passes the filter.
func (f CountFilter) Matches(r Record) bool {
	if f.Provider != nil && r.Provider != *f.Provider {
		return false
	}
	if f.Verified != nil && r.Verified != *f.Verified {
		return false
	}
	return true
}

func ptr[T any](v T) *T { return &v }

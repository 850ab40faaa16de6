package accounts

import (
	"fmt"
	"time"
)

// Provider names the authentication path that created an account.
type Provider string

const (
	ProviderLocal    Provider = "local"
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// IsFederated reports whether p is a known third-party provider.
func (p Provider) IsFederated() bool {
	return p == ProviderGoogle || p == ProviderFacebook
}

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	return p == ProviderLocal || p.IsFederated()
}

// AuthMethod is the provider specific part of an Account. It is either
// *LocalCredentials or *FederatedIdentity.
type AuthMethod interface {
	Provider() Provider
	authMethod()
}

// LocalCredentials hold the secrets of an email/password account.
type LocalCredentials struct {
	PasswordHash string
	// Set only while the account waits for email confirmation.
	VerificationToken string
}

func (*LocalCredentials) Provider() Provider { return ProviderLocal }
func (*LocalCredentials) authMethod()        {}

// FederatedIdentity records which provider vouched for the account.
type FederatedIdentity struct {
	Name    Provider
	Subject string
}

func (f *FederatedIdentity) Provider() Provider { return f.Name }
func (*FederatedIdentity) authMethod()          {}

// Account is the single entity managed by this package.
//
// IdentityKey is the email address for local accounts and the provider issued
// subject for federated ones. It never changes after creation.
type Account struct {
	IdentityKey string
	Email       string // may be empty for federated profiles without email scope
	DisplayName string
	Verified    bool
	CreatedAt   time.Time
	LastSeenAt  time.Time
	LoginCount  int
	Method      AuthMethod
}

// Provider returns the provider of the account's auth method.
func (a *Account) Provider() Provider {
	if a.Method == nil {
		return ""
	}
	return a.Method.Provider()
}

// Local returns the local credentials when a is a local account.
func (a *Account) Local() (*LocalCredentials, bool) {
	lc, ok := a.Method.(*LocalCredentials)
	return lc, ok && lc != nil
}

// Federated returns the federated identity when a is a federated account.
func (a *Account) Federated() (*FederatedIdentity, bool) {
	fi, ok := a.Method.(*FederatedIdentity)
	return fi, ok && fi != nil
}

// PendingToken returns the outstanding verification token, if any.
func (a *Account) PendingToken() string {
	if lc, ok := a.Local(); ok {
		return lc.VerificationToken
	}
	return ""
}

// Validate checks the structural invariants of an account.
func (a *Account) Validate() error {
	if a.IdentityKey == "" {
		return fmt.Errorf("%w: empty identity key", ErrInvalidRecord)
	}
	if a.LoginCount < 0 {
		return fmt.Errorf("%w: negative login count", ErrInvalidRecord)
	}
	switch m := a.Method.(type) {
	case *LocalCredentials:
		if m == nil || m.PasswordHash == "" {
			return fmt.Errorf("%w: local account without password hash", ErrInvalidRecord)
		}
		if m.VerificationToken != "" && a.Verified {
			return fmt.Errorf("%w: verified account with pending token", ErrInvalidRecord)
		}
	case *FederatedIdentity:
		if m == nil || !m.Name.IsFederated() {
			return fmt.Errorf("%w: unknown federated provider", ErrInvalidRecord)
		}
	default:
		return fmt.Errorf("%w: missing auth method", ErrInvalidRecord)
	}
	return nil
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	switch m := a.Method.(type) {
	case *LocalCredentials:
		lc := *m
		out.Method = &lc
	case *FederatedIdentity:
		fi := *m
		out.Method = &fi
	}
	return &out
}

// NewLocalAccount builds an unverified local account awaiting token confirmation.
func NewLocalAccount(email, displayName, passwordHash, token string, now time.Time) *Account {
	return &Account{
		IdentityKey: email,
		Email:       email,
		DisplayName: displayName,
		Verified:    false,
		CreatedAt:   now,
		LastSeenAt:  now,
		LoginCount:  0,
		Method:      &LocalCredentials{PasswordHash: passwordHash, VerificationToken: token},
	}
}

// NewFederatedAccount builds a verified account for a first federated sign in.
// Creation counts as the first login.
func NewFederatedAccount(p FederatedProfile, now time.Time) *Account {
	return &Account{
		IdentityKey: p.Subject,
		Email:       p.Email,
		DisplayName: p.displayName(),
		Verified:    true,
		CreatedAt:   now,
		LastSeenAt:  now,
		LoginCount:  1,
		Method:      &FederatedIdentity{Name: p.Provider, Subject: p.Subject},
	}
}

// FederatedProfile is what an OAuth provider tells us about the user.
type FederatedProfile struct {
	Provider    Provider
	Subject     string
	Email       string
	DisplayName string
}

func (p FederatedProfile) displayName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Email != "" {
		return p.Email
	}
	return p.Subject
}

// Record is the flat storage form of an Account.
type Record struct {
	IdentityKey       string    `json:"identity_key"`
	Provider          Provider  `json:"provider"`
	Email             string    `json:"email,omitempty"`
	PasswordHash      string    `json:"password_hash,omitempty"`
	DisplayName       string    `json:"display_name"`
	Verified          bool      `json:"verified"`
	VerificationToken string    `json:"verification_token,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LastSeenAt        time.Time `json:"last_seen_at"`
	LoginCount        int       `json:"login_count"`
}

// Record flattens a for storage.
func (a *Account) Record() Record {
	r := Record{
		IdentityKey: a.IdentityKey,
		Provider:    a.Provider(),
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Verified:    a.Verified,
		CreatedAt:   a.CreatedAt,
		LastSeenAt:  a.LastSeenAt,
		LoginCount:  a.LoginCount,
	}
	if lc, ok := a.Local(); ok {
		r.PasswordHash = lc.PasswordHash
		r.VerificationToken = lc.VerificationToken
	}
	return r
}

// Account rebuilds the typed account from a stored record.
func (r Record) Account() (*Account, error) {
	a := &Account{
		IdentityKey: r.IdentityKey,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		Verified:    r.Verified,
		CreatedAt:   r.CreatedAt,
		LastSeenAt:  r.LastSeenAt,
		LoginCount:  r.LoginCount,
	}
	switch {
	case r.Provider == ProviderLocal:
		a.Method = &LocalCredentials{PasswordHash: r.PasswordHash, VerificationToken: r.VerificationToken}
	case r.Provider.IsFederated():
		if r.PasswordHash != "" || r.VerificationToken != "" {
			return nil, fmt.Errorf("%w: federated account %q carries local secrets", ErrInvalidRecord, r.IdentityKey)
		}
		a.Method = &FederatedIdentity{Name: r.Provider, Subject: r.IdentityKey}
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidRecord, r.Provider)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

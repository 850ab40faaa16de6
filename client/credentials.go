// Package client talks to an accountd server on behalf of a command line user.
// It signs in with email and password, keeps the issued bearer token in a
// CredentialStore and attaches it to later API calls.
package client

import (
	"time"
)

// ServerCredential is the bearer token held for one server.
type ServerCredential struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	Email       string    `json:"email,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsExpired reports whether the token is no longer usable at now.
func (c *ServerCredential) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// CredentialStore keeps credentials keyed by server URL.
type CredentialStore interface {
	// GetCredential returns nil, nil when nothing is stored for the server.
	GetCredential(serverURL string) (*ServerCredential, error)
	SetCredential(serverURL string, cred *ServerCredential) error
	RemoveCredential(serverURL string) error
	ListServers() ([]string, error)

	// Save persists pending changes.
	Save() error
}

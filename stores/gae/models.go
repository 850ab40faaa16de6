//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	ac "github.com/panyam/accounts"
)

// AccountEntity is the Datastore entity for accounts
// Key name: identity key
type AccountEntity struct {
	Key               *datastore.Key `datastore:"__key__"`
	Provider          string         `datastore:"provider"`
	Email             string         `datastore:"email"`
	PasswordHash      string         `datastore:"password_hash,noindex"`
	DisplayName       string         `datastore:"display_name,noindex"`
	Verified          bool           `datastore:"verified"`
	VerificationToken string         `datastore:"verification_token"`
	CreatedAt         time.Time      `datastore:"created_at"`
	LastSeenAt        time.Time      `datastore:"last_seen_at"`
	LoginCount        int            `datastore:"login_count,noindex"`
}

func (e *AccountEntity) ToRecord() ac.Record {
	rec := ac.Record{
		Provider:          ac.Provider(e.Provider),
		Email:             e.Email,
		PasswordHash:      e.PasswordHash,
		DisplayName:       e.DisplayName,
		Verified:          e.Verified,
		VerificationToken: e.VerificationToken,
		CreatedAt:         e.CreatedAt.UTC(),
		LastSeenAt:        e.LastSeenAt.UTC(),
		LoginCount:        e.LoginCount,
	}
	if e.Key != nil {
		rec.IdentityKey = e.Key.Name
	}
	return rec
}

func RecordToEntity(r ac.Record, key *datastore.Key) *AccountEntity {
	return &AccountEntity{
		Key:               key,
		Provider:          string(r.Provider),
		Email:             r.Email,
		PasswordHash:      r.PasswordHash,
		DisplayName:       r.DisplayName,
		Verified:          r.Verified,
		VerificationToken: r.VerificationToken,
		CreatedAt:         r.CreatedAt,
		LastSeenAt:        r.LastSeenAt,
		LoginCount:        r.LoginCount,
	}
}

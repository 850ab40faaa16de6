//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	ac "github.com/panyam/accounts"
)

// AccountModel is the GORM model for accounts
type AccountModel struct {
	IdentityKey       string  `gorm:"primaryKey;size:320"`
	Provider          string  `gorm:"size:32;not null;index:idx_accounts_provider_verified"`
	Email             string  `gorm:"size:320"`
	PasswordHash      string  `gorm:"size:128"`
	DisplayName       string  `gorm:"size:255"`
	Verified          bool    `gorm:"default:false;index:idx_accounts_provider_verified"`
	VerificationToken *string `gorm:"size:128;index"`
	CreatedAt         time.Time
	LastSeenAt        time.Time
	LoginCount        int `gorm:"default:0;not null"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

// ToRecord converts the row to the storage record. Timestamps are normalized
// to UTC since drivers return them in the session time zone.
func (m *AccountModel) ToRecord() ac.Record {
	rec := ac.Record{
		IdentityKey:  m.IdentityKey,
		Provider:     ac.Provider(m.Provider),
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		DisplayName:  m.DisplayName,
		Verified:     m.Verified,
		CreatedAt:    m.CreatedAt.UTC(),
		LastSeenAt:   m.LastSeenAt.UTC(),
		LoginCount:   m.LoginCount,
	}
	if m.VerificationToken != nil {
		rec.VerificationToken = *m.VerificationToken
	}
	return rec
}

func RecordToModel(r ac.Record) *AccountModel {
	return &AccountModel{
		IdentityKey:       r.IdentityKey,
		Provider:          string(r.Provider),
		Email:             r.Email,
		PasswordHash:      r.PasswordHash,
		DisplayName:       r.DisplayName,
		Verified:          r.Verified,
		VerificationToken: nullable(r.VerificationToken),
		CreatedAt:         r.CreatedAt,
		LastSeenAt:        r.LastSeenAt,
		LoginCount:        r.LoginCount,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

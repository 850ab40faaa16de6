//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	ac "github.com/panyam/accounts"
)

// AutoMigrate runs database migrations for the accounts table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccountModel{})
}

// Ensure AccountStore implements ac.AccountStore
var _ ac.AccountStore = (*AccountStore)(nil)

// AccountStore implements ac.AccountStore using GORM
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) find(db *gorm.DB, query string, arg any) (*ac.Account, error) {
	var model AccountModel
	if err := db.First(&model, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ac.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToRecord().Account()
}

func (s *AccountStore) FindByKey(ctx context.Context, key string) (*ac.Account, error) {
	return s.find(s.db.WithContext(ctx), "identity_key = ?", key)
}

func (s *AccountStore) FindByVerificationToken(ctx context.Context, token string) (*ac.Account, error) {
	if token == "" {
		return nil, ac.ErrAccountNotFound
	}
	return s.find(s.db.WithContext(ctx), "verification_token = ?", token)
}

// Create inserts with ON CONFLICT DO NOTHING so a lost race shows up as zero
// affected rows rather than a driver specific error.
func (s *AccountStore) Create(ctx context.Context, account *ac.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(RecordToModel(account.Record()))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ac.ErrAccountExists
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ac.ErrAccountExists
	}
	return nil
}

func (s *AccountStore) Update(ctx context.Context, key string, update ac.AccountUpdate) (*ac.Account, error) {
	var account *ac.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model AccountModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "identity_key = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ac.ErrAccountNotFound
		} else if err != nil {
			return err
		}

		rec := model.ToRecord()
		if err := update.Apply(&rec); err != nil {
			return err
		}
		if account, err = rec.Account(); err != nil {
			return err
		}
		// A map so zero values (cleared token, verified=false) are written too.
		return tx.Model(&AccountModel{}).
			Where("identity_key = ?", key).
			Updates(map[string]any{
				"display_name":       rec.DisplayName,
				"password_hash":      rec.PasswordHash,
				"verified":           rec.Verified,
				"verification_token": nullable(rec.VerificationToken),
				"last_seen_at":       rec.LastSeenAt,
				"login_count":        rec.LoginCount,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountStore) Count(ctx context.Context, filter ac.CountFilter) (int, error) {
	q := s.db.WithContext(ctx).Model(&AccountModel{})
	if filter.Provider != nil {
		q = q.Where("provider = ?", string(*filter.Provider))
	}
	if filter.Verified != nil {
		q = q.Where("verified = ?", *filter.Verified)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// Package memory provides an in-process AccountStore. It is the reference
// implementation of the store contract and backs tests and development.
package memory

import (
	"context"
	"sync"

	ac "github.com/panyam/accounts"
)

// Ensure Store implements AccountStore
var _ ac.AccountStore = (*Store)(nil)

// Store keeps records in a map guarded by a single mutex, so every operation
// is linearizable.
type Store struct {
	mu      sync.RWMutex
	records map[string]ac.Record
}

func New() *Store {
	return &Store{records: map[string]ac.Record{}}
}

func (s *Store) FindByKey(ctx context.Context, key string) (*ac.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ac.ErrAccountNotFound
	}
	return rec.Account()
}

func (s *Store) FindByVerificationToken(ctx context.Context, token string) (*ac.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ac.ErrAccountNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.VerificationToken == token {
			return rec.Account()
		}
	}
	return nil, ac.ErrAccountNotFound
}

func (s *Store) Create(ctx context.Context, account *ac.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := account.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[account.IdentityKey]; exists {
		return ac.ErrAccountExists
	}
	s.records[account.IdentityKey] = account.Record()
	return nil
}

func (s *Store) Update(ctx context.Context, key string, update ac.AccountUpdate) (*ac.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ac.ErrAccountNotFound
	}
	if err := update.Apply(&rec); err != nil {
		return nil, err
	}
	account, err := rec.Account()
	if err != nil {
		return nil, err
	}
	s.records[key] = rec
	return account, nil
}

func (s *Store) Count(ctx context.Context, filter ac.CountFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.records {
		if filter.Matches(rec) {
			n++
		}
	}
	return n, nil
}

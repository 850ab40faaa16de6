// Package fs stores accounts as JSON files, one per account, under
// <StoragePath>/accounts. It suits development and single process deployments.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ac "github.com/panyam/accounts"
)

// Ensure FSAccountStore implements AccountStore
var _ ac.AccountStore = (*FSAccountStore)(nil)

// FSAccountStore stores accounts as JSON files.
//
// Creates are exclusive at the filesystem level. Updates are read-modify-write
// under an in-process lock, so concurrent updates from several processes
// sharing one directory are not serialized.
type FSAccountStore struct {
	StoragePath string
	mu          sync.RWMutex
}

func NewFSAccountStore(storagePath string) *FSAccountStore {
	return &FSAccountStore{StoragePath: storagePath}
}

func (s *FSAccountStore) getAccountDir() string {
	return filepath.Join(s.StoragePath, "accounts")
}

// getAccountPath maps an identity key to its file. The name is the sha256 of
// the key, so it is filesystem safe and fixed length however long the key is.
// The key itself lives inside the record.
func (s *FSAccountStore) getAccountPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.getAccountDir(), hex.EncodeToString(sum[:])+".json")
}

func (s *FSAccountStore) readRecord(path string) (ac.Record, error) {
	var rec ac.Record
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rec, ac.ErrAccountNotFound
		}
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("%w: %s: %w", ac.ErrInvalidRecord, filepath.Base(path), err)
	}
	return rec, nil
}

func (s *FSAccountStore) FindByKey(ctx context.Context, key string) (*ac.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.readRecord(s.getAccountPath(key))
	if err != nil {
		return nil, err
	}
	if rec.IdentityKey != key {
		return nil, fmt.Errorf("%w: file for %q holds %q", ac.ErrInvalidRecord, key, rec.IdentityKey)
	}
	return rec.Account()
}

// FindByVerificationToken scans every account file.
func (s *FSAccountStore) FindByVerificationToken(ctx context.Context, token string) (*ac.Account, error) {
	if token == "" {
		return nil, ac.ErrAccountNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *ac.Account
	err := s.scan(ctx, func(rec ac.Record) (bool, error) {
		if rec.VerificationToken != token {
			return true, nil
		}
		a, err := rec.Account()
		found = a
		return false, err
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ac.ErrAccountNotFound
	}
	return found, nil
}

func (s *FSAccountStore) Create(ctx context.Context, account *ac.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := account.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(account.Record(), "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.getAccountDir(), 0o755); err != nil {
		return err
	}
	err = createExclusiveFile(s.getAccountPath(account.IdentityKey), data)
	if errors.Is(err, os.ErrExist) {
		return ac.ErrAccountExists
	}
	return err
}

func (s *FSAccountStore) Update(ctx context.Context, key string, update ac.AccountUpdate) (*ac.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.getAccountPath(key)
	rec, err := s.readRecord(path)
	if err != nil {
		return nil, err
	}
	if err := update.Apply(&rec); err != nil {
		return nil, err
	}
	account, err := rec.Account()
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeAtomicFile(path, data); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *FSAccountStore) Count(ctx context.Context, filter ac.CountFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	err := s.scan(ctx, func(rec ac.Record) (bool, error) {
		if filter.Matches(rec) {
			n++
		}
		return true, nil
	})
	return n, err
}

// scan calls fn for each stored record until fn returns false or an error.
// Temp files and unreadable entries are skipped.
func (s *FSAccountStore) scan(ctx context.Context, fn func(ac.Record) (bool, error)) error {
	entries, err := os.ReadDir(s.getAccountDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".tmp-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := s.readRecord(filepath.Join(s.getAccountDir(), name))
		if err != nil {
			continue
		}
		more, err := fn(rec)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

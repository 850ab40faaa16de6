//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	ac "github.com/panyam/accounts"
)

// KindAccount is the Datastore kind holding accounts
const KindAccount = "Account"

// Ensure AccountStore implements ac.AccountStore
var _ ac.AccountStore = (*AccountStore)(nil)

// AccountStore implements ac.AccountStore using Google Cloud Datastore
type AccountStore struct {
	client    *datastore.Client
	namespace string
}

// NewAccountStore creates a new Datastore-backed AccountStore
func NewAccountStore(client *datastore.Client, namespace string) *AccountStore {
	return &AccountStore{client: client, namespace: namespace}
}

func (s *AccountStore) namespacedKey(name string) *datastore.Key {
	key := datastore.NameKey(KindAccount, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *AccountStore) query() *datastore.Query {
	query := datastore.NewQuery(KindAccount)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}
	return query
}

func (s *AccountStore) FindByKey(ctx context.Context, key string) (*ac.Account, error) {
	var entity AccountEntity
	if err := s.client.Get(ctx, s.namespacedKey(key), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, ac.ErrAccountNotFound
		}
		return nil, err
	}
	return entity.ToRecord().Account()
}

func (s *AccountStore) FindByVerificationToken(ctx context.Context, token string) (*ac.Account, error) {
	if token == "" {
		return nil, ac.ErrAccountNotFound
	}
	query := s.query().FilterField("verification_token", "=", token).Limit(1)
	it := s.client.Run(ctx, query)
	var entity AccountEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, ac.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity.ToRecord().Account()
}

func (s *AccountStore) Create(ctx context.Context, account *ac.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	key := s.namespacedKey(account.IdentityKey)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing AccountEntity
		err := tx.Get(key, &existing)
		if err == nil {
			return ac.ErrAccountExists
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		_, err = tx.Put(key, RecordToEntity(account.Record(), key))
		return err
	})
	return err
}

func (s *AccountStore) Update(ctx context.Context, key string, update ac.AccountUpdate) (*ac.Account, error) {
	dsKey := s.namespacedKey(key)
	var account *ac.Account
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity AccountEntity
		if err := tx.Get(dsKey, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return ac.ErrAccountNotFound
			}
			return err
		}
		entity.Key = dsKey
		rec := entity.ToRecord()
		if err := update.Apply(&rec); err != nil {
			return err
		}
		var err error
		if account, err = rec.Account(); err != nil {
			return err
		}
		_, err = tx.Put(dsKey, RecordToEntity(rec, dsKey))
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountStore) Count(ctx context.Context, filter ac.CountFilter) (int, error) {
	query := s.query()
	if filter.Provider != nil {
		query = query.FilterField("provider", "=", string(*filter.Provider))
	}
	if filter.Verified != nil {
		query = query.FilterField("verified", "=", *filter.Verified)
	}
	return s.client.Count(ctx, query)
}

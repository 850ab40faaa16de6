// Package postgres implements AccountStore over a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	ac "github.com/panyam/accounts"
	"github.com/panyam/accounts/stores/postgres/migrations"
)

// Ensure Store implements AccountStore
var _ ac.AccountStore = (*Store)(nil)

const columns = `identity_key, provider, email, password_hash, display_name, verified,
	verification_token, created_at, last_seen_at, login_count`

type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. Call Migrate before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Migrate applies the embedded goose migrations through the pgx stdlib bridge.
func (s *Store) Migrate(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(s.pool)
	defer sqlDB.Close()
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

func (s *Store) Close() {
	s.pool.Close()
}

func scanRecord(row pgx.Row) (ac.Record, error) {
	var (
		rec      ac.Record
		provider string
		token    *string
	)
	err := row.Scan(&rec.IdentityKey, &provider, &rec.Email, &rec.PasswordHash, &rec.DisplayName,
		&rec.Verified, &token, &rec.CreatedAt, &rec.LastSeenAt, &rec.LoginCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, ac.ErrAccountNotFound
	} else if err != nil {
		return rec, err
	}
	rec.Provider = ac.Provider(provider)
	if token != nil {
		rec.VerificationToken = *token
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.LastSeenAt = rec.LastSeenAt.UTC()
	return rec, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Store) FindByKey(ctx context.Context, key string) (*ac.Account, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM accounts WHERE identity_key = $1`, key))
	if err != nil {
		return nil, err
	}
	return rec.Account()
}

func (s *Store) FindByVerificationToken(ctx context.Context, token string) (*ac.Account, error) {
	if token == "" {
		return nil, ac.ErrAccountNotFound
	}
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM accounts WHERE verification_token = $1`, token))
	if err != nil {
		return nil, err
	}
	return rec.Account()
}

func (s *Store) Create(ctx context.Context, account *ac.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	rec := account.Record()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (identity_key) DO NOTHING`,
		rec.IdentityKey, string(rec.Provider), rec.Email, rec.PasswordHash, rec.DisplayName,
		rec.Verified, nullable(rec.VerificationToken), rec.CreatedAt.UTC(), rec.LastSeenAt.UTC(),
		rec.LoginCount)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ac.ErrAccountExists
	}
	return nil
}

// Update locks the row for the duration of the transaction, so concurrent
// updates to one account apply one after another.
func (s *Store) Update(ctx context.Context, key string, update ac.AccountUpdate) (*ac.Account, error) {
	var account *ac.Account
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rec, err := scanRecord(tx.QueryRow(ctx,
			`SELECT `+columns+` FROM accounts WHERE identity_key = $1 FOR UPDATE`, key))
		if err != nil {
			return err
		}
		if err := update.Apply(&rec); err != nil {
			return err
		}
		if account, err = rec.Account(); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE accounts SET display_name = $1, password_hash = $2, verified = $3,
				verification_token = $4, last_seen_at = $5, login_count = $6
			WHERE identity_key = $7`,
			rec.DisplayName, rec.PasswordHash, rec.Verified, nullable(rec.VerificationToken),
			rec.LastSeenAt.UTC(), rec.LoginCount, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) Count(ctx context.Context, filter ac.CountFilter) (int, error) {
	var provider *string
	if filter.Provider != nil {
		p := string(*filter.Provider)
		provider = &p
	}
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts
		WHERE ($1::text IS NULL OR provider = $1) AND ($2::boolean IS NULL OR verified = $2)`,
		provider, filter.Verified).Scan(&n)
	return n, err
}

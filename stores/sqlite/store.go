// Package sqlite implements AccountStore over a single SQLite file using the
// pure Go modernc driver. The schema is managed by embedded goose migrations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	ac "github.com/panyam/accounts"
	"github.com/panyam/accounts/stores/sqlite/migrations"
)

// Ensure Store implements AccountStore
var _ ac.AccountStore = (*Store)(nil)

const columns = `identity_key, provider, email, password_hash, display_name, verified,
	verification_token, created_at, last_seen_at, login_count`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements account persistence over SQLite.
//
// The pool is limited to one connection, which serializes every transaction
// and makes read-modify-write updates linearizable.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the database at path, creating it if needed, and applies
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func migrate(ctx context.Context, sqlDB *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, sqlDB, migrations.FS)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ac.Record, error) {
	var (
		rec       ac.Record
		provider  string
		token     sql.NullString
		createdAt int64
		seenAt    int64
	)
	err := row.Scan(&rec.IdentityKey, &provider, &rec.Email, &rec.PasswordHash, &rec.DisplayName,
		&rec.Verified, &token, &createdAt, &seenAt, &rec.LoginCount)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ac.ErrAccountNotFound
	} else if err != nil {
		return rec, err
	}
	rec.Provider = ac.Provider(provider)
	rec.VerificationToken = token.String
	rec.CreatedAt = fromMillis(createdAt)
	rec.LastSeenAt = fromMillis(seenAt)
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) FindByKey(ctx context.Context, key string) (*ac.Account, error) {
	rec, err := scanRecord(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+columns+` FROM accounts WHERE identity_key = ?`, key))
	if err != nil {
		return nil, err
	}
	return rec.Account()
}

func (s *Store) FindByVerificationToken(ctx context.Context, token string) (*ac.Account, error) {
	if token == "" {
		return nil, ac.ErrAccountNotFound
	}
	rec, err := scanRecord(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+columns+` FROM accounts WHERE verification_token = ?`, token))
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
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO accounts (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identity_key) DO NOTHING`,
		rec.IdentityKey, string(rec.Provider), rec.Email, rec.PasswordHash, rec.DisplayName,
		rec.Verified, nullString(rec.VerificationToken), toMillis(rec.CreatedAt),
		toMillis(rec.LastSeenAt), rec.LoginCount)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ac.ErrAccountExists
	}
	return nil
}

func (s *Store) Update(ctx context.Context, key string, update ac.AccountUpdate) (*ac.Account, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+columns+` FROM accounts WHERE identity_key = ?`, key))
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
	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET display_name = ?, password_hash = ?, verified = ?,
			verification_token = ?, last_seen_at = ?, login_count = ?
		WHERE identity_key = ?`,
		rec.DisplayName, rec.PasswordHash, rec.Verified, nullString(rec.VerificationToken),
		toMillis(rec.LastSeenAt), rec.LoginCount, key)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) Count(ctx context.Context, filter ac.CountFilter) (int, error) {
	query := `SELECT COUNT(*) FROM accounts WHERE 1 = 1`
	var args []any
	if filter.Provider != nil {
		query += ` AND provider = ?`
		args = append(args, string(*filter.Provider))
	}
	if filter.Verified != nil {
		query += ` AND verified = ?`
		args = append(args, *filter.Verified)
	}
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ac "github.com/panyam/accounts"
	"github.com/panyam/accounts/stores/storetest"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ac.AccountStore {
		return openTestStore(t, filepath.Join(t.TempDir(), "accounts.db"))
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestReopenKeepsDataAndSkipsAppliedMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, storetest.LocalAccount("keep@example.com", "tok")))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	got, err := reopened.FindByKey(ctx, "keep@example.com")
	require.NoError(t, err)
	assert.Equal(t, "tok", got.PendingToken())
}

func TestClearedTokenIsStoredAsNull(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, s.Create(ctx, storetest.LocalAccount("n@example.com", "tok")))

	verified, cleared := true, ""
	_, err := s.Update(ctx, "n@example.com", ac.AccountUpdate{Verified: &verified, VerificationToken: &cleared})
	require.NoError(t, err)

	var nulls int
	require.NoError(t, s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE verification_token IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)
}

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ac "github.com/panyam/accounts"
	"github.com/panyam/accounts/stores/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ac.AccountStore { return New() })
}

func TestFindReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Create(ctx, storetest.LocalAccount("copy@example.com", "tok")))

	a, err := s.FindByKey(ctx, "copy@example.com")
	require.NoError(t, err)
	a.DisplayName = "mutated"
	a.Method.(*ac.LocalCredentials).VerificationToken = ""

	b, err := s.FindByKey(ctx, "copy@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", b.DisplayName)
	assert.Equal(t, "tok", b.PendingToken())
}

func TestCreateRejectsInvalidAccount(t *testing.T) {
	s := New()
	bad := &ac.Account{IdentityKey: "x@example.com", Method: &ac.LocalCredentials{}}
	err := s.Create(context.Background(), bad)
	assert.ErrorIs(t, err, ac.ErrInvalidRecord)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().FindByKey(ctx, "any@example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

// Package storetest is a conformance suite for AccountStore implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ac "github.com/panyam/accounts"
)

// Factory returns an empty store. Cleanup should be registered on t.
type Factory func(t *testing.T) ac.AccountStore

// Run exercises the whole store contract against stores made by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndFindLocal", func(t *testing.T) { testCreateAndFindLocal(t, newStore(t)) })
	t.Run("CreateAndFindFederated", func(t *testing.T) { testCreateAndFindFederated(t, newStore(t)) })
	t.Run("DuplicateCreate", func(t *testing.T) { testDuplicateCreate(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("FindByVerificationToken", func(t *testing.T) { testFindByToken(t, newStore(t)) })
	t.Run("ConditionalUpdate", func(t *testing.T) { testConditionalUpdate(t, newStore(t)) })
	t.Run("ConcurrentTokenConsumption", func(t *testing.T) { testConcurrentTokenConsumption(t, newStore(t)) })
	t.Run("ConcurrentLoginIncrement", func(t *testing.T) { testConcurrentLoginIncrement(t, newStore(t)) })
	t.Run("UpdateFields", func(t *testing.T) { testUpdateFields(t, newStore(t)) })
	t.Run("UpdateUnknown", func(t *testing.T) { testUpdateUnknown(t, newStore(t)) })
	t.Run("Count", func(t *testing.T) { testCount(t, newStore(t)) })
	t.Run("LongKey", func(t *testing.T) { testLongKey(t, newStore(t)) })
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// LocalAccount returns an unverified local account with a pending token.
func LocalAccount(email, token string) *ac.Account {
	return ac.NewLocalAccount(email, "User "+email, "$2a$04$fakehashfakehashfakehu", token, epoch)
}

// FederatedAccount returns a verified account for provider and subject.
func FederatedAccount(provider ac.Provider, subject string) *ac.Account {
	return ac.NewFederatedAccount(ac.FederatedProfile{
		Provider:    provider,
		Subject:     subject,
		Email:       subject + "@example.com",
		DisplayName: "Fed " + subject,
	}, epoch)
}

func testCreateAndFindLocal(t *testing.T, s ac.AccountStore) {
	ctx := context.Background()
	want := LocalAccount("ann@example.com", "tok-ann")
	require.NoError(t, s.Create(ctx, want))

	got, err := s.FindByKey(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, want.IdentityKey, got.IdentityKey)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.DisplayName, got.DisplayName)
	assert.False(t, got.Verified)
	assert.Equal(t, 0, got.LoginCount)
	assert.WithinDuration(t, epoch, got.CreatedAt, time.Millisecond)
	assert.WithinDuration(t, epoch, got.LastSeenAt, time.Millisecond)

	lc, ok := got.Local()
	require.True(t, ok, "expected local credentials")
	assert.Equal(t, "$2a$04$fakehashfakehashfakehu", lc.PasswordHash)
	assert.Equal(t, "tok-ann", lc.VerificationToken)

	_, err = s.FindByKey(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ac.ErrAccountNotFound)
}

func testCreateAndFindFederated(t *testing.T, s ac.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, FederatedAccount(ac.ProviderGoogle, "g-123")))

	got, err := s.FindByKey(ctx, "g-123")
	require.NoError(t, err)
	fi, ok := got.Federated()
	require.True(t, ok, "expected federated identity")
	assert.Equal(t, ac.ProviderGoogle, fi.Name)
	assert.Equal(t, "g-123", fi.Subject)
	assert.True(t, got.Verified)
	assert.Equal(t, 1, got.LoginCount)
	assert.Equal(t, "g-123@example.com", got.Email)
	assert.Empty(t, got.PendingToken())
}

func testDuplicateCreate(t *testing.T, s ac.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, LocalAccount("dup@example.com", "t1")))
	err := s.Create(ctx, LocalAccount("dup@example.com", "t2"))
	assert.ErrorIs(t, err, ac.ErrAccountExists)

	// Original is untouched
	got, err := s.FindByKey(ctx, "dup@example.com")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.PendingToken())
}

func testConcurrentCreate(t *testing.T, s ac.AccountStore) {
	ctx := context.Background()
	const n = 8
	var created, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Create(ctx, LocalAccount("race@example.com", fmt.Sprintf("tok-%d", i)))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, ac.ErrAccountExists):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected create error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, n-1, conflicts.Load())

	count, err := s.Count(ctx, ac.CountFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testFindByToken(t *testing.T, s ac.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, LocalAccount("a@example.com", "tok-a")))
	require.NoError(t, s.Create(ctx, LocalAccount("b@example.com", "tok-b")))
	require.NoError(t, s.Create(ctx, FederatedAccount(ac.ProviderFacebook, "fb-1")))

	got, err := s.FindByVerificationToken(ctx, "tok-b")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", got.IdentityKey)

	_, err = s.FindByVerificationToken(ctx, "tok-missing")
	assert.ErrorIs(t, err, ac.ErrAccountNotFound)

	// Accounts without a pending token never match the empty token
	_, err = s.FindByVerificationToken(ctx, "")
	assert.ErrorIs(t, err, ac.ErrAccountNotFound)
}

func ptr[T any](v T) *T { return &v }

func testConditionalUpdate(t *testing.T, s ac.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, LocalAccount("c@example.com", "tok-c")))

	_, err := s.Update(ctx, "c@example.com", ac.AccountUpdate{
		Verified:            ptr(true),
		VerificationToken:   ptr(""),
		IfVerificationToken: ptr("wrong"),
	})
	assert.ErrorIs(t, err, ac.ErrTokenMismatch)

	got, err := s.Update(ctx, "c@example.com", ac.AccountUpdate{
		Verified:            ptr(true),
		VerificationToken:   ptr(""),
		IfVerificationToken: ptr("tok-c"),
		LoginIncrement:      1,
	})
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Empty(t, got.PendingToken())
	assert.Equal(t, 1, got.LoginCount)

	_, err = s.FindByVerificationToken(ctx, "tok-c")
	assert.ErrorIs(t, err, ac.ErrAccountNotFound)

	// A second consumption of the same token fails
	_, err = s.Update(ctx, "c@example.com", ac.AccountUpdate{IfVerificationToken: ptr("tok-c"), LoginIncrement: 1})
	assert.ErrorIs(t, err, ac.ErrTokenMismatch)
}

func testConcurrentTokenConsumption(t *testing.T, s ac.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, LocalAccount("v@example.com", "tok-v")))

	const n = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "v@example.com", ac.AccountUpdate{
				Verified:            ptr(true),
				VerificationToken:   ptr(""),
				IfVerificationToken: ptr("tok-v"),
				LoginIncrement:      1,
			})
			if err == nil {
				wins.Add(1)
			} else if !errors.Is(err, ac.ErrTokenMismatch) {
				t.Errorf("unexpected update error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())

	got, err := s.FindByKey(ctx, "v@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, got.LoginCount)
}

func testConcurrentLoginIncrement(t *testing.T, s ac.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, FederatedAccount(ac.ProviderGoogle, "g-inc")))

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Update(ctx, "g-inc", ac.AccountUpdate{LoginIncrement: 1}); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.FindByKey(ctx, "g-inc")
	require.NoError(t, err)
	assert.Equal(t, 1+n, got.LoginCount)
}

func testUpdateFields(t *testing.T, s ac.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, LocalAccount("u@example.com", "tok-u")))

	seen := epoch.Add(time.Hour)
	got, err := s.Update(ctx, "u@example.com", ac.AccountUpdate{
		DisplayName:       ptr("Renamed"),
		PasswordHash:      ptr("$2a$04$otherhashotherhashothe"),
		VerificationToken: ptr("tok-u2"),
		LastSeenAt:        &seen,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.DisplayName)
	assert.WithinDuration(t, seen, got.LastSeenAt, time.Millisecond)
	assert.Equal(t, "tok-u2", got.PendingToken())
	lc, _ := got.Local()
	assert.Equal(t, "$2a$04$otherhashotherhashothe", lc.PasswordHash)

	// Persisted, not just returned
	again, err := s.FindByKey(ctx, "u@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", again.DisplayName)
	assert.Equal(t, got.PendingToken(), again.PendingToken())

	// Nothing else moved
	assert.Equal(t, 0, again.LoginCount)
	assert.False(t, again.Verified)
	assert.WithinDuration(t, epoch, again.CreatedAt, time.Millisecond)
}

func testUpdateUnknown(t *testing.T, s ac.AccountStore) {
	_, err := s.Update(context.Background(), "ghost@example.com", ac.AccountUpdate{LoginIncrement: 1})
	assert.ErrorIs(t, err, ac.ErrAccountNotFound)
}

func testCount(t *testing.T, s ac.AccountStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, LocalAccount("l1@example.com", "t1")))
	require.NoError(t, s.Create(ctx, LocalAccount("l2@example.com", "t2")))
	require.NoError(t, s.Create(ctx, FederatedAccount(ac.ProviderGoogle, "g-1")))
	require.NoError(t, s.Create(ctx, FederatedAccount(ac.ProviderFacebook, "f-1")))
	_, err := s.Update(ctx, "l1@example.com", ac.AccountUpdate{
		Verified: ptr(true), VerificationToken: ptr(""),
	})
	require.NoError(t, err)

	local, google := ac.ProviderLocal, ac.ProviderGoogle
	tests := []struct {
		name   string
		filter ac.CountFilter
		want   int
	}{
		{"all", ac.CountFilter{}, 4},
		{"local", ac.CountFilter{Provider: &local}, 2},
		{"google", ac.CountFilter{Provider: &google}, 1},
		{"verified", ac.CountFilter{Verified: ptr(true)}, 3},
		{"unverified local", ac.CountFilter{Provider: &local, Verified: ptr(false)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// LongEmail is a valid address of 253 bytes, close to the longest an email
// address can be.
func LongEmail() string {
	label := strings.Repeat("x", 58) + "."
	return strings.Repeat("a", 64) + "@" + strings.Repeat(label, 3) + "example.com"
}

func testLongKey(t *testing.T, s ac.AccountStore) {
	ctx := context.Background()
	key := LongEmail()
	require.True(t, ac.IsValidEmail(key))
	require.NoError(t, s.Create(ctx, LocalAccount(key, "tok-long")))
	assert.ErrorIs(t, s.Create(ctx, LocalAccount(key, "tok-other")), ac.ErrAccountExists)

	got, err := s.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, got.IdentityKey)

	verified, cleared, tok := true, "", "tok-long"
	got, err = s.Update(ctx, key, ac.AccountUpdate{Verified: &verified, VerificationToken: &cleared, IfVerificationToken: &tok})
	require.NoError(t, err)
	assert.True(t, got.Verified)

	// A key sharing the long prefix is a different account
	_, err = s.FindByKey(ctx, key[:len(key)-1])
	assert.ErrorIs(t, err, ac.ErrAccountNotFound)
}

package redisstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb), mr
}

func TestCommitFindDelete(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CommitCtx(ctx, "tok", []byte("data"), time.Now().Add(time.Minute)))
	assert.True(t, mr.Exists(DefaultPrefix+"tok"))

	b, found, err := s.FindCtx(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("data"), b)

	require.NoError(t, s.DeleteCtx(ctx, "tok"))
	_, found, err = s.FindCtx(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting twice is fine
	require.NoError(t, s.Delete("tok"))
}

func TestSessionsExpire(t *testing.T) {
	s, mr := newTestStore(t)

	require.NoError(t, s.Commit("tok", []byte("data"), time.Now().Add(30*time.Second)))
	ttl := mr.TTL(DefaultPrefix + "tok")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 30*time.Second)

	mr.FastForward(31 * time.Second)
	_, found, err := s.Find("tok")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCommitPastExpiryDeletes(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, s.Commit("tok", []byte("data"), time.Now().Add(time.Minute)))
	require.NoError(t, s.Commit("tok", []byte("data"), time.Now().Add(-time.Second)))
	assert.False(t, mr.Exists(DefaultPrefix+"tok"))
}

func TestFindReportsRedisErrors(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()
	_, _, err := s.Find("tok")
	assert.Error(t, err)
}

func TestWorksAsSessionManagerStore(t *testing.T) {
	s, _ := newTestStore(t)
	manager := scs.New()
	manager.Store = s

	mux := http.NewServeMux()
	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {
		manager.Put(r.Context(), "key", "value")
	})
	mux.HandleFunc("/get", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(manager.GetString(r.Context(), "key")))
	})
	srv := httptest.NewServer(manager.LoadAndSave(mux))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/put")
	require.NoError(t, err)
	res.Body.Close()
	cookies := res.Cookies()
	require.NotEmpty(t, cookies)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/get", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "value", string(body))
}

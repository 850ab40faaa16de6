package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ac "github.com/panyam/accounts"
	"github.com/panyam/accounts/client"
	"github.com/panyam/accounts/stores/memory"
)

type memCredentials struct {
	mu    sync.Mutex
	creds map[string]*client.ServerCredential
	saves int
}

func newMemCredentials() *memCredentials {
	return &memCredentials{creds: map[string]*client.ServerCredential{}}
}

func (m *memCredentials) GetCredential(serverURL string) (*client.ServerCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds[serverURL], nil
}

func (m *memCredentials) SetCredential(serverURL string, cred *client.ServerCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[serverURL] = cred
	return nil
}

func (m *memCredentials) RemoveCredential(serverURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, serverURL)
	return nil
}

func (m *memCredentials) ListServers() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.creds {
		out = append(out, k)
	}
	return out, nil
}

func (m *memCredentials) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	return nil
}

type tokenCapture struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (c *tokenCapture) SendVerification(ctx context.Context, to, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[to] = token
	return nil
}

func (c *tokenCapture) token(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[email]
}

type testServer struct {
	*httptest.Server
	store  *memory.Store
	mail   *tokenCapture
	bearer *ac.BearerTokens
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	mail := &tokenCapture{tokens: map[string]string{}}
	resolver := ac.NewResolver(store, mail)
	resolver.Hasher = ac.NewBcryptHasher(4)
	manager := scs.New()
	sessions := ac.NewSessions(manager, ac.NewSessionBinder(store))
	bearer := &ac.BearerTokens{Secret: []byte("0123456789abcdef0123456789abcdef")}
	h := &ac.Handlers{Resolver: resolver, Sessions: sessions, Bearer: bearer}
	mw := &ac.Middleware{Sessions: sessions, Bearer: bearer}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users/{emailAddress}", h.Signup)
	mux.HandleFunc("GET /api/users/verify", h.Verify)
	mux.HandleFunc("POST /api/users/verify/resend", h.ResendVerification)
	mux.Handle("GET /api/users/current/info", mw.EnsureAccount(http.HandlerFunc(h.Me)))
	mux.Handle("PUT /api/users/current/info", mw.EnsureAccount(http.HandlerFunc(h.UpdateDisplayName)))
	mux.Handle("PUT /api/users/current/password", mw.EnsureAccount(http.HandlerFunc(h.ChangePassword)))
	mux.HandleFunc("POST /auth/local", h.Login)

	server := httptest.NewServer(manager.LoadAndSave(mux))
	t.Cleanup(server.Close)
	return &testServer{Server: server, store: store, mail: mail, bearer: bearer}
}

func (s *testServer) verify(t *testing.T, email string) {
	t.Helper()
	resp, err := http.Get(s.URL + "/api/users/verify?token=" + s.mail.token(email))
	require.NoError(t, err)
	resp.Body.Close()
}

const password = "Str0ng!pass"

func TestSignupLoginJourney(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	creds := newMemCredentials()
	c := client.NewAccountClient(server.URL+"/ignored/path", creds)
	assert.Equal(t, server.URL, c.ServerURL())

	require.NoError(t, c.Signup(ctx, "j@example.com", password, "Jay"))

	_, err := c.Login(ctx, "j@example.com", password)
	var authErr *ac.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ac.ReasonNotVerified, authErr.Code)
	assert.False(t, c.IsLoggedIn())

	server.verify(t, "j@example.com")
	cred, err := c.Login(ctx, "j@example.com", password)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", cred.TokenType)
	assert.Equal(t, "j@example.com", cred.Email)
	assert.True(t, c.IsLoggedIn())
	assert.Equal(t, 1, creds.saves)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, client.Profile{Username: "Jay", EmailAddress: "j@example.com", Provider: ac.ProviderLocal, Verified: true}, *me)

	require.NoError(t, c.UpdateDisplayName(ctx, "Jay B"))
	err = c.ChangePassword(ctx, "Wr0ng!pass", "N3w!password")
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ac.ReasonInvalidPassword, authErr.Code)
	assert.Equal(t, "oldPassword", authErr.Field)
	require.NoError(t, c.ChangePassword(ctx, password, "N3w!password"))

	me, err = c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Jay B", me.Username)

	require.NoError(t, c.Logout())
	_, err = c.Me(ctx)
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)
}

func TestRejectionsBecomeAuthErrors(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	c := client.NewAccountClient(server.URL, newMemCredentials())

	err := c.Signup(ctx, "not-an-email", password, "x")
	assert.ErrorIs(t, err, ac.NewAuthError(ac.ReasonInvalidEmail, "", ""))

	err = c.ResendVerification(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, ac.NewAuthError(ac.ReasonNotExisted, "", ""))

	_, err = c.Login(ctx, "ghost@example.com", password)
	var authErr *ac.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ac.ReasonInvalidEmailAddress, authErr.Code)
	assert.Equal(t, "", authErr.Field)
}

func TestExpiredCredentialIsNotSent(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	now := time.Now()
	creds := newMemCredentials()
	c := client.NewAccountClient(server.URL, creds, client.WithClock(func() time.Time { return now }))

	require.NoError(t, c.Signup(ctx, "e@example.com", password, "E"))
	server.verify(t, "e@example.com")
	cred, err := c.Login(ctx, "e@example.com", password)
	require.NoError(t, err)

	now = cred.ExpiresAt
	token, err := c.Token()
	require.NoError(t, err)
	assert.Empty(t, token)
	_, err = c.Me(ctx)
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)
}

func TestRejectedTokenIsForgotten(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	creds := newMemCredentials()
	c := client.NewAccountClient(server.URL, creds)
	require.NoError(t, creds.SetCredential(server.URL, &client.ServerCredential{
		AccessToken: "forged",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	_, err := c.Me(ctx)
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)
	cred, _ := creds.GetCredential(server.URL)
	assert.Nil(t, cred)
}

func TestHTTPClientCarriesToken(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer server.Close()

	creds := newMemCredentials()
	c := client.NewAccountClient(server.URL, creds, client.WithHTTPClient(&http.Client{Timeout: time.Second}))
	require.NoError(t, creds.SetCredential(server.URL, &client.ServerCredential{
		AccessToken: "abc",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/anything", nil)
	resp, err := c.HTTPClient().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer abc", got)
	assert.Empty(t, req.Header.Get("Authorization"), "caller's request must not be modified")
}

func TestServerErrors(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		switch r.URL.Path {
		case "/api/users/verify/resend":
			w.Write([]byte(`{"status":"error","message":"EmailServiceError"}`))
		case "/auth/local":
			w.Write([]byte(`{"status":"error","message":"DatabaseError"}`))
		default:
			w.Write([]byte(`{"status":"error","message":"ServerError"}`))
		}
	}))
	defer server.Close()
	c := client.NewAccountClient(server.URL, newMemCredentials())

	assert.ErrorIs(t, c.ResendVerification(ctx, "a@example.com"), ac.ErrMailUnavailable)
	_, err := c.Login(ctx, "a@example.com", password)
	assert.ErrorIs(t, err, ac.ErrStorageUnavailable)
	assert.ErrorIs(t, c.Signup(ctx, "a@example.com", password, "a"), client.ErrServer)
}

func TestLoginWithoutBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":null}`))
	}))
	defer server.Close()
	_, err := client.NewAccountClient(server.URL, newMemCredentials()).Login(context.Background(), "a@example.com", password)
	assert.True(t, errors.Is(err, client.ErrNoBearer))
}

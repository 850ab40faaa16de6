package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	ac "github.com/panyam/accounts"
)

var (
	ErrNotLoggedIn = errors.New("not logged in")
	ErrNoBearer    = errors.New("server did not issue a bearer token")
	ErrServer      = errors.New("server error")
)

// Profile is the account summary returned by the server.
type Profile struct {
	Username     string      `json:"username"`
	EmailAddress string      `json:"emailAddress"`
	Provider     ac.Provider `json:"provider"`
	Verified     bool        `json:"verified"`
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type tokenData struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// AccountClient is an HTTP client for the accountd API.
type AccountClient struct {
	mu            sync.Mutex
	serverURL     string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
	now           func() time.Time
}

// ClientOption configures an AccountClient
type ClientOption func(*AccountClient)

// WithHTTPClient copies timeout and transport settings from client. The
// transport is wrapped with bearer handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AccountClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.CheckRedirect = client.CheckRedirect
	}
}

func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AccountClient) {
		c.baseTransport = transport
	}
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) ClientOption {
	return func(c *AccountClient) {
		c.now = now
	}
}

// NewAccountClient returns a client for the server at serverURL. Only the
// scheme and host of serverURL are kept.
func NewAccountClient(serverURL string, store CredentialStore, opts ...ClientOption) *AccountClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &AccountClient{
		serverURL:     serverURL,
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Transport = &bearerTransport{client: c, base: c.baseTransport}
	return c
}

// HTTPClient returns the underlying client. Requests made with it carry the
// stored bearer token.
func (c *AccountClient) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *AccountClient) ServerURL() string {
	return c.serverURL
}

// Token returns the stored access token, or "" when there is none or it has
// expired.
func (c *AccountClient) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil || cred.IsExpired(c.now()) {
		return "", err
	}
	return cred.AccessToken, nil
}

func (c *AccountClient) Credential() (*ServerCredential, error) {
	return c.store.GetCredential(c.serverURL)
}

func (c *AccountClient) IsLoggedIn() bool {
	token, err := c.Token()
	return err == nil && token != ""
}

// forget drops the stored credential if it still holds token.
func (c *AccountClient) forget(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil || cred.AccessToken != token {
		return
	}
	if c.store.RemoveCredential(c.serverURL) == nil {
		c.store.Save()
	}
}

// Signup registers a local account. The server mails a verification link.
func (c *AccountClient) Signup(ctx context.Context, email, password, username string) error {
	return c.call(ctx, http.MethodPost, "/api/users/"+url.PathEscape(email),
		map[string]string{"password": password, "username": username}, nil)
}

// ResendVerification asks the server to mail a fresh verification link.
func (c *AccountClient) ResendVerification(ctx context.Context, email string) error {
	return c.call(ctx, http.MethodPost, "/api/users/verify/resend",
		map[string]string{"emailAddress": email}, nil)
}

// Login signs in and stores the issued bearer token.
func (c *AccountClient) Login(ctx context.Context, email, password string) (*ServerCredential, error) {
	var data *tokenData
	err := c.call(ctx, http.MethodPost, "/auth/local",
		map[string]string{"emailAddress": email, "password": password}, &data)
	if err != nil {
		return nil, err
	}
	if data == nil || data.AccessToken == "" {
		return nil, ErrNoBearer
	}

	cred := &ServerCredential{
		AccessToken: data.AccessToken,
		TokenType:   data.TokenType,
		Email:       email,
		ExpiresAt:   time.Unix(data.ExpiresAt, 0).UTC(),
		CreatedAt:   c.now().UTC(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	return cred, nil
}

// Logout forgets the stored credential. Bearer tokens are not revocable, so
// the server is not contacted.
func (c *AccountClient) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	return c.store.Save()
}

func (c *AccountClient) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.call(ctx, http.MethodGet, "/api/users/current/info", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *AccountClient) UpdateDisplayName(ctx context.Context, username string) error {
	return c.call(ctx, http.MethodPut, "/api/users/current/info",
		map[string]string{"newUsername": username}, nil)
}

func (c *AccountClient) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return c.call(ctx, http.MethodPut, "/api/users/current/password",
		map[string]string{"oldPassword": oldPassword, "newPassword": newPassword}, nil)
}

// call sends body as JSON and decodes a JSend reply. Fail replies become
// *ac.AuthError; error replies wrap the matching accounts error.
func (c *AccountClient) call(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("invalid response from server (HTTP %d): %w", resp.StatusCode, err)
	}
	switch env.Status {
	case "success":
		if out == nil || len(env.Data) == 0 {
			return nil
		}
		return json.Unmarshal(env.Data, out)
	case "fail":
		if resp.StatusCode == http.StatusUnauthorized {
			return ErrNotLoggedIn
		}
		return failure(env.Data)
	default:
		switch env.Message {
		case "DatabaseError":
			return fmt.Errorf("%w: reported by server", ac.ErrStorageUnavailable)
		case "EmailServiceError":
			return fmt.Errorf("%w: reported by server", ac.ErrMailUnavailable)
		}
		return fmt.Errorf("%w: HTTP %d %s", ErrServer, resp.StatusCode, env.Message)
	}
}

func failure(data json.RawMessage) error {
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil || len(fields) == 0 {
		return fmt.Errorf("%w: malformed rejection", ErrServer)
	}
	for field, code := range fields {
		if field == "auth" {
			field = ""
		}
		return ac.NewAuthError(ac.Reason(code), "", field)
	}
	return nil
}

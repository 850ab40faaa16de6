package accounts_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alexedwards/scs/v2"
	"golang.org/x/crypto/bcrypt"

	ac "github.com/panyam/accounts"
	"github.com/panyam/accounts/stores/memory"
)

type httpFixture struct {
	*fixture
	handlers *ac.Handlers
	mw       *ac.Middleware
	server   *httptest.Server
	client   *http.Client
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	f := newFixture(t)
	manager := scs.New()
	sessions := ac.NewSessions(manager, ac.NewSessionBinder(f.store))
	bearer := &ac.BearerTokens{Secret: []byte("0123456789abcdef0123456789abcdef")}
	h := &ac.Handlers{Resolver: f.resolver, Sessions: sessions, Bearer: bearer}
	mw := &ac.Middleware{Sessions: sessions, Bearer: bearer}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users/{emailAddress}", h.Signup)
	mux.HandleFunc("GET /api/users/verify", h.Verify)
	mux.HandleFunc("POST /api/users/verify/resend", h.ResendVerification)
	mux.Handle("GET /api/users/current/info", mw.EnsureAccount(http.HandlerFunc(h.Me)))
	mux.Handle("PUT /api/users/current/info", mw.EnsureAccount(http.HandlerFunc(h.UpdateDisplayName)))
	mux.Handle("PUT /api/users/current/password", mw.EnsureAccount(http.HandlerFunc(h.ChangePassword)))
	mux.HandleFunc("POST /auth/local", h.Login)
	mux.HandleFunc("GET /auth/signout", h.Logout)
	mux.HandleFunc("GET /auth/fake/callback", func(w http.ResponseWriter, r *http.Request) {
		h.CompleteFederated(w, r, ac.FederatedProfile{
			Provider: ac.Provider(r.URL.Query().Get("provider")),
			Subject:  r.URL.Query().Get("subject"),
		})
	})

	server := httptest.NewServer(manager.LoadAndSave(mux))
	t.Cleanup(server.Close)
	jar, _ := cookiejar.New(nil)
	return &httpFixture{
		fixture:  f,
		handlers: h,
		mw:       mw,
		server:   server,
		client: &http.Client{Jar: jar, CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}},
	}
}

type jsend struct {
	Status  string         `json:"status"`
	Data    map[string]any `json:"data"`
	Message string         `json:"message"`
}

func (f *httpFixture) request(t *testing.T, method, path, contentType, body string, header http.Header) (*http.Response, jsend) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var env jsend
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decoding envelope: %v", err)
		}
	}
	return resp, env
}

func (f *httpFixture) postJSON(t *testing.T, path, body string) (*http.Response, jsend) {
	t.Helper()
	return f.request(t, http.MethodPost, path, "application/json", body, nil)
}

func TestSignupHandler(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		status      int
		envStatus   string
		data        map[string]any
	}{
		{
			name:        "json body",
			path:        "/api/users/alice@example.com",
			contentType: "application/json",
			body:        `{"password":"Str0ng!pass","username":"Alice"}`,
			status:      http.StatusOK,
			envStatus:   "success",
		},
		{
			name:        "form body",
			path:        "/api/users/form@example.com",
			contentType: "application/x-www-form-urlencoded",
			body:        url.Values{"password": {"Str0ng!pass"}, "username": {"Form"}}.Encode(),
			status:      http.StatusOK,
			envStatus:   "success",
		},
		{
			name:        "invalid email",
			path:        "/api/users/not-an-email",
			contentType: "application/json",
			body:        `{"password":"Str0ng!pass","username":"x"}`,
			status:      http.StatusBadRequest,
			envStatus:   "fail",
			data:        map[string]any{"emailAddress": "InvalidEmail"},
		},
		{
			name:        "weak password",
			path:        "/api/users/weak@example.com",
			contentType: "application/json",
			body:        `{"password":"weak","username":"x"}`,
			status:      http.StatusBadRequest,
			envStatus:   "fail",
			data:        map[string]any{"password": "InvalidPassword"},
		},
		{
			name:        "missing username",
			path:        "/api/users/nouser@example.com",
			contentType: "application/json",
			body:        `{"password":"Str0ng!pass"}`,
			status:      http.StatusBadRequest,
			envStatus:   "fail",
			data:        map[string]any{"username": "InvalidUsername"},
		},
		{
			name:        "malformed json",
			path:        "/api/users/bad@example.com",
			contentType: "application/json",
			body:        `{"password":`,
			status:      http.StatusBadRequest,
			envStatus:   "fail",
			data:        map[string]any{"body": "ParseError"},
		},
	}
	f := newHTTPFixture(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, env := f.request(t, http.MethodPost, tc.path, tc.contentType, tc.body, nil)
			if resp.StatusCode != tc.status || env.Status != tc.envStatus {
				t.Fatalf("expected %d/%s, got %d/%s %v", tc.status, tc.envStatus, resp.StatusCode, env.Status, env.Data)
			}
			for k, v := range tc.data {
				if env.Data[k] != v {
					t.Errorf("expected data[%s]=%v, got %v", k, v, env.Data)
				}
			}
		})
	}

	resp, env := f.postJSON(t, "/api/users/alice@example.com", `{"password":"Str0ng!pass","username":"Alice"}`)
	if resp.StatusCode != http.StatusBadRequest || env.Data["emailAddress"] != "EmailAddressTaken" {
		t.Errorf("expected EmailAddressTaken, got %d %v", resp.StatusCode, env.Data)
	}
}

func TestSignupHandlerFailures(t *testing.T) {
	f := newHTTPFixture(t)
	f.notifier.failed = errors.New("smtp down")
	resp, env := f.postJSON(t, "/api/users/m@example.com", `{"password":"Str0ng!pass","username":"M"}`)
	if resp.StatusCode != http.StatusServiceUnavailable || env.Status != "error" || env.Message != "EmailServiceError" {
		t.Errorf("expected EmailServiceError, got %d %+v", resp.StatusCode, env)
	}

	f.notifier.failed = nil
	f.resolver.Store = &flakyStore{Store: f.store, failOn: map[string]bool{"find": true}}
	resp, env = f.postJSON(t, "/api/users/d@example.com", `{"password":"Str0ng!pass","username":"D"}`)
	if resp.StatusCode != http.StatusServiceUnavailable || env.Message != "DatabaseError" {
		t.Errorf("expected DatabaseError, got %d %+v", resp.StatusCode, env)
	}
}

func TestVerifyHandler(t *testing.T) {
	f := newHTTPFixture(t)
	f.postJSON(t, "/api/users/v@example.com", `{"password":"Str0ng!pass","username":"V"}`)
	token := f.notifier.last("v@example.com")

	resp, _ := f.request(t, http.MethodGet, "/api/users/verify?token=nope", "", "", nil)
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/verifyError" {
		t.Errorf("expected redirect to /verifyError, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, _ = f.request(t, http.MethodGet, "/api/users/verify?token="+token, "", "", nil)
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to /dashboard, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp, env := f.request(t, http.MethodGet, "/api/users/current/info", "", "", nil)
	if resp.StatusCode != http.StatusOK || env.Data["emailAddress"] != "v@example.com" || env.Data["verified"] != true {
		t.Errorf("expected verified session, got %d %v", resp.StatusCode, env.Data)
	}
}

func TestResendHandler(t *testing.T) {
	f := newHTTPFixture(t)
	f.postJSON(t, "/api/users/r@example.com", `{"password":"Str0ng!pass","username":"R"}`)

	resp, env := f.postJSON(t, "/api/users/verify/resend", `{"emailAddress":"r@example.com"}`)
	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		t.Errorf("expected resend to succeed, got %d %+v", resp.StatusCode, env)
	}
	if f.notifier.count("r@example.com") != 2 {
		t.Errorf("expected a second mail, got %d", f.notifier.count("r@example.com"))
	}
	resp, env = f.postJSON(t, "/api/users/verify/resend", `{"emailAddress":"ghost@example.com"}`)
	if resp.StatusCode != http.StatusBadRequest || env.Data["emailAddress"] != "NotExisted" {
		t.Errorf("expected NotExisted, got %d %v", resp.StatusCode, env.Data)
	}
}

func TestLoginHandler(t *testing.T) {
	f := newHTTPFixture(t)
	f.verifiedAccount(t, "l@example.com")

	resp, env := f.postJSON(t, "/auth/local", `{"emailAddress":"l@example.com","password":"Wr0ng!pass"}`)
	if resp.StatusCode != http.StatusBadRequest || env.Data["auth"] != "InvalidPassword" {
		t.Errorf("expected auth InvalidPassword, got %d %v", resp.StatusCode, env.Data)
	}
	resp, env = f.postJSON(t, "/auth/local", `{"emailAddress":"nobody@example.com","password":"Wr0ng!pass"}`)
	if resp.StatusCode != http.StatusBadRequest || env.Data["auth"] != "InvalidEmailAddress" {
		t.Errorf("expected auth InvalidEmailAddress, got %d %v", resp.StatusCode, env.Data)
	}

	resp, env = f.postJSON(t, "/auth/local", `{"emailAddress":"l@example.com","password":"`+goodPassword+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %+v", resp.StatusCode, env)
	}
	if env.Data["tokenType"] != "Bearer" || env.Data["accessToken"] == "" {
		t.Errorf("expected bearer token, got %v", env.Data)
	}

	resp, env = f.request(t, http.MethodGet, "/api/users/current/info", "", "", nil)
	if resp.StatusCode != http.StatusOK || env.Data["username"] != "User" {
		t.Errorf("expected session after login, got %d %v", resp.StatusCode, env.Data)
	}

	resp, _ = f.request(t, http.MethodGet, "/auth/signout?to=//evil.example.com", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected protocol relative redirect to be ignored, got %d", resp.StatusCode)
	}
	resp, _ = f.request(t, http.MethodGet, "/api/users/current/info", "", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after signout, got %d", resp.StatusCode)
	}
	resp, _ = f.request(t, http.MethodGet, "/auth/signout?to=/goodbye", "", "", nil)
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/goodbye" {
		t.Errorf("expected local redirect, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestProfileHandlers(t *testing.T) {
	f := newHTTPFixture(t)
	f.verifiedAccount(t, "p@example.com")
	f.postJSON(t, "/auth/local", `{"emailAddress":"p@example.com","password":"`+goodPassword+`"}`)

	resp, env := f.request(t, http.MethodPut, "/api/users/current/info", "application/json", `{"newUsername":" "}`, nil)
	if resp.StatusCode != http.StatusBadRequest || env.Data["newUsername"] != "InvalidUsername" {
		t.Errorf("expected InvalidUsername, got %d %v", resp.StatusCode, env.Data)
	}
	resp, _ = f.request(t, http.MethodPut, "/api/users/current/info", "application/json", `{"newUsername":"Renamed"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("rename: %d", resp.StatusCode)
	}

	resp, env = f.request(t, http.MethodPut, "/api/users/current/password", "application/json",
		`{"oldPassword":"Wr0ng!pass","newPassword":"N3w!password"}`, nil)
	if resp.StatusCode != http.StatusBadRequest || env.Data["oldPassword"] != "InvalidPassword" {
		t.Errorf("expected oldPassword InvalidPassword, got %d %v", resp.StatusCode, env.Data)
	}
	resp, _ = f.request(t, http.MethodPut, "/api/users/current/password", "application/json",
		`{"oldPassword":"`+goodPassword+`","newPassword":"N3w!password"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("change password: %d", resp.StatusCode)
	}
	a, _ := f.store.FindByKey(context.Background(), "p@example.com")
	lc, _ := a.Local()
	if a.DisplayName != "Renamed" || bcrypt.CompareHashAndPassword([]byte(lc.PasswordHash), []byte("N3w!password")) != nil {
		t.Errorf("expected rename and new password to be stored, got %+v", a)
	}
}

func TestCompleteFederated(t *testing.T) {
	f := newHTTPFixture(t)

	resp, _ := f.request(t, http.MethodGet, "/auth/fake/callback?provider=google&subject=g-42", "", "", nil)
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp, env := f.request(t, http.MethodGet, "/api/users/current/info", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("info: %d", resp.StatusCode)
	}
	// No email or name from the provider
	if env.Data["emailAddress"] != "N/A" || env.Data["username"] != "g-42" || env.Data["provider"] != "google" {
		t.Errorf("unexpected info %v", env.Data)
	}

	resp, _ = f.request(t, http.MethodGet, "/auth/fake/callback?provider=facebook&subject=g-42", "", "", nil)
	if resp.Header.Get("Location") != "/" {
		t.Errorf("expected provider mismatch to land on /, got %s", resp.Header.Get("Location"))
	}
}

func TestHandlersDefaults(t *testing.T) {
	h := (&ac.Handlers{Resolver: ac.NewResolver(memory.New(), nil)}).EnsureDefaults()
	if h.SuccessRedirectURL != "/dashboard" || h.VerifyErrorURL != "/verifyError" || h.FailureRedirectURL != "/" {
		t.Errorf("unexpected defaults %+v", h)
	}
}

func TestInternalFailureIsServerError(t *testing.T) {
	f := newHTTPFixture(t)
	f.resolver.NewToken = func() (string, error) { return "", errors.New("entropy source closed") }
	resp, env := f.postJSON(t, "/api/users/i@example.com", `{"password":"Str0ng!pass","username":"I"}`)
	if resp.StatusCode != http.StatusInternalServerError || env.Status != "error" || env.Message != "ServerError" {
		t.Errorf("expected 500 ServerError, got %d %+v", resp.StatusCode, env)
	}
}

package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type accountContextKey struct{}

// WithAccount returns a context carrying a.
func WithAccount(ctx context.Context, a *Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, a)
}

// AccountFromContext returns the account placed by the middleware, if any.
func AccountFromContext(ctx context.Context) (*Account, bool) {
	a, ok := ctx.Value(accountContextKey{}).(*Account)
	return a, ok && a != nil
}

// Middleware resolves the logged in account of a request, first from the
// session and then from a bearer token.
type Middleware struct {
	Sessions *Sessions
	Bearer   *BearerTokens

	// Used to resolve bearer subjects. Defaults to Sessions.Binder.
	Binder *SessionBinder

	AuthTokenHeaderName string
	CallbackURLParam    string
	GetRedirURL         func(r *http.Request) string
	Logger              *slog.Logger
}

/**
 * Ensures that config values have reasonable defaults.
 */
func (m *Middleware) EnsureReasonableDefaults() {
	if m.AuthTokenHeaderName == "" {
		m.AuthTokenHeaderName = "Authorization"
	}
	if m.CallbackURLParam == "" {
		m.CallbackURLParam = "callbackURL"
	}
	if m.Binder == nil && m.Sessions != nil {
		m.Binder = m.Sessions.Binder
	}
	if m.Logger == nil {
		m.Logger = slog.Default()
	}
}

// CurrentAccount returns the account of the request or ErrNoSession.
func (m *Middleware) CurrentAccount(r *http.Request) (*Account, error) {
	if a, ok := AccountFromContext(r.Context()); ok {
		return a, nil
	}
	if m.Sessions != nil {
		a, err := m.Sessions.Current(r.Context())
		if !errors.Is(err, ErrNoSession) && !errors.Is(err, ErrSessionInvalid) {
			return a, err
		}
	}
	if m.Bearer == nil || m.Binder == nil {
		return nil, ErrNoSession
	}
	for _, value := range r.Header.Values(m.AuthTokenHeaderName) {
		token, ok := strings.CutPrefix(value, "Bearer ")
		if !ok || token == "" {
			continue
		}
		key, err := m.Bearer.Verify(token)
		if err != nil {
			m.Logger.WarnContext(r.Context(), "rejected bearer token", "error", err)
			continue
		}
		a, err := m.Binder.Resolve(r.Context(), key)
		if errors.Is(err, ErrSessionInvalid) {
			continue
		}
		return a, err
	}
	return nil, ErrNoSession
}

/**
 * Resolves the account of the request and makes it available to downstream
 * handlers via AccountFromContext.
 *
 * Requests without an account pass through unchanged. Use EnsureAccount to
 * also require one.
 */
func (m *Middleware) ExtractAccount(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, err := m.CurrentAccount(r)
		if err != nil && !errors.Is(err, ErrNoSession) {
			m.Logger.ErrorContext(r.Context(), "resolving account", "error", err)
		}
		if a != nil {
			r = r.WithContext(WithAccount(r.Context(), a))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) EnsureAccount(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, err := m.CurrentAccount(r)
		switch {
		case a != nil:
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), a)))
		case err != nil && !errors.Is(err, ErrNoSession):
			m.Logger.ErrorContext(r.Context(), "resolving account", "error", err)
			writeError(w, err)
		default:
			// Redirect to a login if user not logged in
			redirURL := ""
			if m.GetRedirURL != nil {
				redirURL = m.GetRedirURL(r)
			}
			if redirURL == "" {
				writeFail(w, http.StatusUnauthorized, NewAuthError("NotLoggedIn", "Login required", ""))
				return
			}
			encoded := strings.ReplaceAll(url.QueryEscape(r.URL.Path), "+", "%20")
			http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", redirURL, m.CallbackURLParam, encoded), http.StatusFound)
		}
	})
}

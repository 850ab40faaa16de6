package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	ac "github.com/panyam/accounts"
)

// BaseOAuth2 holds what every provider shares: the oauth2 config, the
// redirect and callback routes, and the userinfo fetch.
type BaseOAuth2 struct {
	Provider       ac.Provider
	HandleProfile  HandleProfileFunc
	AuthFailureUrl string

	// UserInfoURL is where the access token is exchanged for a profile.
	// Can be overridden for testing.
	UserInfoURL string

	Logger *slog.Logger

	oauthConfig oauth2.Config
	httpClient  *http.Client
	mux         *http.ServeMux
	toProfile   func(map[string]any) ac.FederatedProfile
}

// Config carries the client credentials for one provider.
type Config struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string
}

func (c Config) Enabled() bool {
	return c.ClientId != "" && c.ClientSecret != ""
}

func newBaseOAuth2(provider ac.Provider, cfg Config, endpoint oauth2.Endpoint, scopes []string, handleProfile HandleProfileFunc) *BaseOAuth2 {
	out := &BaseOAuth2{
		Provider:       provider,
		HandleProfile:  handleProfile,
		AuthFailureUrl: "/",
		Logger:         slog.Default(),
		mux:            http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     cfg.ClientId,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
	out.mux.HandleFunc("/callback/", out.handleCallback)
	out.mux.HandleFunc("/callback", out.handleCallback)
	out.mux.HandleFunc("/", OauthRedirector(&out.oauthConfig))
	return out
}

// Handler serves the redirect at "/" and the provider callback at
// "/callback". Mount it under a prefix with http.StripPrefix.
func (b *BaseOAuth2) Handler() http.Handler {
	return b.mux
}

// Redirect starts the flow by sending the browser to the provider.
func (b *BaseOAuth2) Redirect(w http.ResponseWriter, r *http.Request) {
	OauthRedirector(&b.oauthConfig)(w, r)
}

// Callback completes the flow at the provider's redirect URL.
func (b *BaseOAuth2) Callback(w http.ResponseWriter, r *http.Request) {
	b.handleCallback(w, r)
}

func (b *BaseOAuth2) SetHTTPClient(client *http.Client) {
	b.httpClient = client
}

// SetOAuthEndpoint replaces the provider's auth and token URLs.
func (b *BaseOAuth2) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.httpClient != nil {
		return b.httpClient
	}
	return http.DefaultClient
}

// ExchangeContext carries the injected client into the token exchange.
func (b *BaseOAuth2) ExchangeContext(ctx context.Context) context.Context {
	if b.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	}
	return ctx
}

func (b *BaseOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	oauthState, _ := r.Cookie(stateCookieName)
	if oauthState == nil {
		http.Error(w, "OauthState is nil", http.StatusBadRequest)
		return
	}
	if r.FormValue("state") != oauthState.Value {
		http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1})
		http.Error(w, fmt.Sprintf("invalid oauth %s state", b.Provider), http.StatusBadRequest)
		return
	}
	clearStateCookie(w)

	ctx := r.Context()
	token, err := b.oauthConfig.Exchange(b.ExchangeContext(ctx), r.FormValue("code"))
	if err != nil {
		b.Logger.InfoContext(ctx, "invalid code exchange", "provider", b.Provider, "error", err)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}
	userInfo, err := b.getUserData(ctx, token)
	if err != nil {
		b.Logger.InfoContext(ctx, "fetching user info", "provider", b.Provider, "error", err)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}
	b.HandleProfile(w, r, b.toProfile(userInfo))
}

func (b *BaseOAuth2) getUserData(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := b.getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info from %s: %w", b.Provider, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info from %s: status %d", b.Provider, response.StatusCode)
	}

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed read response: %w", err)
	}
	var userInfo map[string]any
	if err := json.Unmarshal(contents, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return userInfo, nil
}

// stringField reads a userinfo field, tolerating numeric ids.
func stringField(info map[string]any, name string) string {
	switch v := info[name].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case json.Number:
		return v.String()
	}
	return ""
}

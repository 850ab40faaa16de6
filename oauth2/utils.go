package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	ac "github.com/panyam/accounts"
)

const (
	stateCookieName    = "oauthstate"
	CallbackCookieName = "oauthCallbackURL"
)

// HandleProfileFunc receives the profile once the provider has vouched for it.
type HandleProfileFunc func(w http.ResponseWriter, r *http.Request, profile ac.FederatedProfile)

func generateStateOauthCookie(w http.ResponseWriter) string {
	expiration := time.Now().Add(10 * time.Minute)
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		slog.Error("generating oauth state", "error", err)
	}
	state := base64.URLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  expiration,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return state
}

func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1})
}

// OauthRedirector sends the browser to the provider's consent page. A
// callbackURL query parameter is remembered in a short-lived cookie.
func OauthRedirector(oauthConfig *oauth2.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callbackURL := r.URL.Query().Get("callbackURL")
		if callbackURL != "" {
			http.SetCookie(w, &http.Cookie{
				Name:    CallbackCookieName,
				Value:   callbackURL,
				Path:    "/",
				Expires: time.Now().Add(24 * time.Hour),
				MaxAge:  120, // keep this short
			})
		}
		oauthState := generateStateOauthCookie(w)
		u := oauthConfig.AuthCodeURL(oauthState)
		http.Redirect(w, r, u, http.StatusFound)
	}
}

// CallbackURL returns the local path remembered by OauthRedirector, or "".
// Absolute and protocol-relative URLs are ignored.
func CallbackURL(r *http.Request) string {
	c, err := r.Cookie(CallbackCookieName)
	if err != nil || !strings.HasPrefix(c.Value, "/") || strings.HasPrefix(c.Value, "//") {
		return ""
	}
	return c.Value
}

package accounts

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Handlers expose the resolver over HTTP with JSend style envelopes:
//
//	{"status": "success", "data": ...}
//	{"status": "fail", "data": {"<field>": "<reason>"}}
//	{"status": "error", "message": "DatabaseError" | "EmailServiceError" | "ServerError"}
type Handlers struct {
	Resolver *Resolver
	Sessions *Sessions

	// When set, successful logins also return a bearer token.
	Bearer *BearerTokens

	// Where verification and federated sign in land. Default "/dashboard".
	SuccessRedirectURL string
	// Where a bad verification token lands. Default "/verifyError".
	VerifyErrorURL string
	// Where a failed federated sign in lands. Default "/".
	FailureRedirectURL string

	// PathVar reads a route variable. Defaults to http.Request.PathValue.
	PathVar func(r *http.Request, name string) string

	Logger *slog.Logger
}

func (h *Handlers) EnsureDefaults() *Handlers {
	if h.SuccessRedirectURL == "" {
		h.SuccessRedirectURL = "/dashboard"
	}
	if h.VerifyErrorURL == "" {
		h.VerifyErrorURL = "/verifyError"
	}
	if h.FailureRedirectURL == "" {
		h.FailureRedirectURL = "/"
	}
	if h.PathVar == nil {
		h.PathVar = func(r *http.Request, name string) string { return r.PathValue(name) }
	}
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	return h
}

// Signup handles POST /api/users/{emailAddress} with password and username in
// the body. The email may also be sent in the body.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	h.EnsureDefaults()
	body, ok := h.parseBody(w, r)
	if !ok {
		return
	}
	email := h.PathVar(r, "emailAddress")
	if email == "" {
		email = body.get("emailAddress")
	}
	o := h.Resolver.Signup(r.Context(), SignupRequest{
		Email:       email,
		Password:    body.get("password"),
		DisplayName: body.get("username"),
	})
	h.writeOutcome(w, o, http.StatusBadRequest)
}

// Login handles POST /auth/local.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	h.EnsureDefaults()
	body, ok := h.parseBody(w, r)
	if !ok {
		return
	}
	o := h.Resolver.Login(r.Context(), body.get("emailAddress"), body.get("password"))
	switch o.Kind {
	case OutcomeRejected:
		writeJSON(w, http.StatusBadRequest, envelope{Status: "fail", Data: map[string]any{"auth": o.Reason()}})
		return
	case OutcomeAuthenticated:
		if err := h.Sessions.Login(r.Context(), o.Account); err != nil {
			h.Logger.ErrorContext(r.Context(), "establishing session", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, envelope{Status: "error", Message: "ServerError"})
			return
		}
		writeSuccess(w, h.tokenData(r, o.Account))
		return
	}
	h.writeOutcome(w, o, http.StatusBadRequest)
}

func (h *Handlers) tokenData(r *http.Request, a *Account) any {
	if h.Bearer == nil {
		return nil
	}
	token, expiresAt, err := h.Bearer.Issue(a)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "issuing bearer token", "error", err)
		return nil
	}
	return map[string]any{"accessToken": token, "tokenType": "Bearer", "expiresAt": expiresAt.Unix()}
}

// Verify handles GET /api/users/verify?token=... and redirects to the
// dashboard with a fresh session, or to the error page.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	h.EnsureDefaults()
	o := h.Resolver.Verify(r.Context(), r.URL.Query().Get("token"))
	switch o.Kind {
	case OutcomeAuthenticated:
		if err := h.Sessions.Login(r.Context(), o.Account); err != nil {
			// Verified regardless; the user can still log in.
			h.Logger.ErrorContext(r.Context(), "establishing session", "error", err)
		}
		http.Redirect(w, r, h.SuccessRedirectURL, http.StatusFound)
	case OutcomeRejected:
		http.Redirect(w, r, h.VerifyErrorURL, http.StatusFound)
	default:
		writeError(w, o.Err)
	}
}

// ResendVerification handles POST /api/users/verify/resend.
func (h *Handlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	h.EnsureDefaults()
	body, ok := h.parseBody(w, r)
	if !ok {
		return
	}
	o := h.Resolver.ResendVerification(r.Context(), body.get("emailAddress"))
	h.writeOutcome(w, o, http.StatusBadRequest)
}

// Logout destroys the session and redirects to ?to= when given.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.EnsureDefaults()
	if err := h.Sessions.Logout(r.Context()); err != nil {
		h.Logger.ErrorContext(r.Context(), "destroying session", "error", err)
	}
	if to := r.URL.Query().Get("to"); strings.HasPrefix(to, "/") && !strings.HasPrefix(to, "//") {
		http.Redirect(w, r, to, http.StatusFound)
		return
	}
	writeSuccess(w, nil)
}

// Me handles GET /api/users/current/info. Requires EnsureAccount.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	a, ok := AccountFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	writeSuccess(w, map[string]any{
		"username":     orNA(a.DisplayName),
		"emailAddress": orNA(a.Email),
		"provider":     a.Provider(),
		"verified":     a.Verified,
	})
}

// UpdateDisplayName handles PUT /api/users/current/info. Requires EnsureAccount.
func (h *Handlers) UpdateDisplayName(w http.ResponseWriter, r *http.Request) {
	h.EnsureDefaults()
	a, ok := AccountFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	body, ok := h.parseBody(w, r)
	if !ok {
		return
	}
	o := h.Resolver.UpdateDisplayName(r.Context(), a.IdentityKey, body.get("newUsername"))
	h.writeOutcome(w, o, http.StatusBadRequest)
}

// ChangePassword handles PUT /api/users/current/password. Requires EnsureAccount.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	h.EnsureDefaults()
	a, ok := AccountFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	body, ok := h.parseBody(w, r)
	if !ok {
		return
	}
	o := h.Resolver.ChangePassword(r.Context(), a.IdentityKey, body.get("oldPassword"), body.get("newPassword"))
	h.writeOutcome(w, o, http.StatusBadRequest)
}

// CompleteFederated finishes an OAuth callback: the profile is resolved, a
// session is established and the browser is sent on.
func (h *Handlers) CompleteFederated(w http.ResponseWriter, r *http.Request, p FederatedProfile) {
	h.EnsureDefaults()
	o := h.Resolver.FederatedLogin(r.Context(), p)
	if o.Kind != OutcomeAuthenticated {
		http.Redirect(w, r, h.FailureRedirectURL, http.StatusFound)
		return
	}
	if err := h.Sessions.Login(r.Context(), o.Account); err != nil {
		h.Logger.ErrorContext(r.Context(), "establishing session", "error", err)
		http.Redirect(w, r, h.FailureRedirectURL, http.StatusFound)
		return
	}
	http.Redirect(w, r, h.SuccessRedirectURL, http.StatusFound)
}

// writeOutcome maps outcome classes to status codes: success 200, rejected
// rejectStatus, failed 503 (500 for internal failures).
func (h *Handlers) writeOutcome(w http.ResponseWriter, o Outcome, rejectStatus int) {
	switch o.Kind {
	case OutcomeRejected:
		writeFail(w, rejectStatus, o.Rejection)
	case OutcomeFailed:
		writeError(w, o.Err)
	default:
		writeSuccess(w, nil)
	}
}

type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: data})
}

func writeFail(w http.ResponseWriter, status int, e *AuthError) {
	field := e.Field
	if field == "" {
		field = "auth"
	}
	writeJSON(w, status, envelope{Status: "fail", Data: map[string]any{field: e.Code}})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, envelope{Status: "fail", Data: map[string]any{"session": "Unauthorized"}})
}

func writeError(w http.ResponseWriter, err error) {
	status, message := http.StatusServiceUnavailable, "ServerError"
	switch {
	case errors.Is(err, ErrMailUnavailable):
		message = "EmailServiceError"
	case errors.Is(err, ErrStorageUnavailable):
		message = "DatabaseError"
	case errors.Is(err, ErrInternal):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, envelope{Status: "error", Message: message})
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

type requestBody map[string]any

func (b requestBody) get(name string) string {
	s, _ := b[name].(string)
	return s
}

// parseBody reads form or JSON bodies into a flat map.
func (h *Handlers) parseBody(w http.ResponseWriter, r *http.Request) (requestBody, bool) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			writeFail(w, http.StatusBadRequest, NewAuthError("ParseError", "Error parsing form", "body"))
			return nil, false
		}
		body := requestBody{}
		for k := range r.PostForm {
			body[k] = r.PostForm.Get(k)
		}
		return body, true
	}
	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		writeFail(w, http.StatusBadRequest, NewAuthError("ParseError", "Invalid post body", "body"))
		return nil, false
	}
	return body, true
}

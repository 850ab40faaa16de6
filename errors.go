package accounts

import "errors"

// Store contract errors
var (
	ErrAccountExists   = errors.New("account already exists")       // uniqueness violation on identity key
	ErrAccountNotFound = errors.New("account not found")            // no account for key or token
	ErrTokenMismatch   = errors.New("verification token mismatch") // conditional update precondition failed
	ErrInvalidRecord   = errors.New("invalid account record")
)

// System failures. All are safe for the caller to retry.
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrMailUnavailable    = errors.New("mail unavailable")
	// Hashing or token generation failed; nothing was written.
	ErrInternal = errors.New("internal failure")
)

// Session errors
var (
	ErrNoSession          = errors.New("no session")
	ErrSessionInvalid     = errors.New("session refers to an unknown account")
	ErrInvalidBearerToken = errors.New("invalid bearer token")
)

// Reason is the machine readable cause of a rejected attempt.
type Reason string

const (
	ReasonInvalidEmail        Reason = "InvalidEmail"
	ReasonInvalidPassword     Reason = "InvalidPassword"
	ReasonInvalidUsername     Reason = "InvalidUsername"
	ReasonEmailAddressTaken   Reason = "EmailAddressTaken"
	ReasonInvalidEmailAddress Reason = "InvalidEmailAddress"
	ReasonInvalidCredentials  Reason = "InvalidCredentials"
	ReasonNotVerified         Reason = "NotVerified"
	ReasonUnknownToken        Reason = "UnknownToken"
	ReasonNotExisted          Reason = "NotExisted"
	ReasonAlreadyVerified     Reason = "AlreadyVerified"
	ReasonInvalidProfile      Reason = "InvalidProfile"
	ReasonProviderMismatch    Reason = "ProviderMismatch"
	ReasonNotLocalAccount     Reason = "NotLocalAccount"
)

// AuthError describes a rejected attempt. Field names the offending input when
// there is one.
type AuthError struct {
	Code    Reason
	Message string
	Field   string
}

func NewAuthError(code Reason, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Is matches another *AuthError carrying the same code.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SignupRequest carries the inputs of a local registration.
type SignupRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// validate checks the inputs in a fixed order and reports the first failure.
func (s SignupRequest) validate() *AuthError {
	if !IsValidEmail(s.Email) {
		return NewAuthError(ReasonInvalidEmail, "Invalid email format", "emailAddress")
	}
	if !IsValidPassword(s.Password) {
		return NewAuthError(ReasonInvalidPassword, passwordRulesMessage(s.Password), "password")
	}
	if !IsValidUsername(s.DisplayName) {
		return NewAuthError(ReasonInvalidUsername, "Username is required", "username")
	}
	return nil
}

// Signup registers a local account. The account starts unverified with a
// pending token that is mailed to the address. Signup never signs the user
// in; the first session comes from Verify.
func (r *Resolver) Signup(ctx context.Context, req SignupRequest) Outcome {
	ctx, span := r.begin(ctx, "Signup")
	return r.end(ctx, span, "Signup", r.signup(ctx, req))
}

func (r *Resolver) signup(ctx context.Context, req SignupRequest) Outcome {
	if authErr := req.validate(); authErr != nil {
		return Outcome{Kind: OutcomeRejected, Rejection: authErr}
	}

	// Cheap pre-check; Create below is the authoritative uniqueness check.
	switch _, err := r.Store.FindByKey(ctx, req.Email); {
	case err == nil:
		return rejected(ReasonEmailAddressTaken, "Email address is already registered", "emailAddress")
	case !errors.Is(err, ErrAccountNotFound):
		return storageFailure(nil, err)
	}

	digest, err := r.Hasher.Hash(req.Password)
	if errors.Is(err, ErrPasswordTooLong) {
		return rejected(ReasonInvalidPassword, "Password is too long", "password")
	} else if err != nil {
		return internalFailure(fmt.Errorf("hash password: %w", err))
	}
	token, err := r.NewToken()
	if err != nil {
		return internalFailure(fmt.Errorf("issue verification token: %w", err))
	}

	account := NewLocalAccount(req.Email, req.DisplayName, digest, token, r.now())
	if err := r.Store.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return rejected(ReasonEmailAddressTaken, "Email address is already registered", "emailAddress")
		}
		return storageFailure(nil, err)
	}
	r.Logger.InfoContext(ctx, "local account created", "identity_key", account.IdentityKey)

	// The account stays even if mail fails; ResendVerification recovers.
	if err := r.Notifier.SendVerification(ctx, account.Email, token); err != nil {
		return mailFailure(account, err)
	}
	return created(account)
}

func passwordRulesMessage(password string) string {
	failing := FailedPasswordRules(password)
	if len(failing) == 0 {
		return "Invalid password"
	}
	return "Password fails rules: " + strings.Join(failing, ", ")
}

package accounts

import (
	"context"
	"errors"
	"fmt"
)

// Login authenticates a local account by email and password. Unverified
// accounts are refused even with the right password.
func (r *Resolver) Login(ctx context.Context, email, password string) Outcome {
	ctx, span := r.begin(ctx, "Login")
	return r.end(ctx, span, "Login", r.login(ctx, email, password))
}

func (r *Resolver) login(ctx context.Context, email, password string) Outcome {
	account, err := r.Store.FindByKey(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		if r.MaskLoginFailures {
			r.Hasher.Verify(password, r.dummyDigest())
		}
		return r.loginRejected(ReasonInvalidEmailAddress, "No account with that email address", "emailAddress")
	} else if err != nil {
		return storageFailure(nil, err)
	}

	// Federated accounts keyed by an email-looking subject have no password.
	lc, ok := account.Local()
	if !ok || lc.PasswordHash == "" || !r.Hasher.Verify(password, lc.PasswordHash) {
		return r.loginRejected(ReasonInvalidPassword, "Incorrect password", "password")
	}
	if !account.Verified {
		return rejected(ReasonNotVerified, "Email address has not been verified", "emailAddress")
	}
	return r.authenticate(ctx, account.IdentityKey, AccountUpdate{})
}

func (r *Resolver) loginRejected(code Reason, message, field string) Outcome {
	if r.MaskLoginFailures {
		return rejected(ReasonInvalidCredentials, "Invalid email address or password", "")
	}
	return rejected(code, message, field)
}

// Verify consumes a verification token. The matching account becomes verified,
// the token is cleared and the confirmation counts as a login. A token can be
// consumed at most once even under concurrent use.
func (r *Resolver) Verify(ctx context.Context, token string) Outcome {
	ctx, span := r.begin(ctx, "Verify")
	return r.end(ctx, span, "Verify", r.verify(ctx, token))
}

func (r *Resolver) verify(ctx context.Context, token string) Outcome {
	if token == "" {
		return rejected(ReasonUnknownToken, "Verification token is required", "token")
	}
	account, err := r.Store.FindByVerificationToken(ctx, token)
	if errors.Is(err, ErrAccountNotFound) {
		return rejected(ReasonUnknownToken, "Unknown verification token", "token")
	} else if err != nil {
		return storageFailure(nil, err)
	}

	o := r.authenticate(ctx, account.IdentityKey, AccountUpdate{
		Verified:            ptr(true),
		VerificationToken:   ptr(""),
		IfVerificationToken: ptr(token),
	})
	if o.Kind == OutcomeRejected {
		// Lost the race to another consumer, or the account vanished.
		return rejected(ReasonUnknownToken, "Unknown verification token", "token")
	}
	if o.Kind == OutcomeAuthenticated {
		r.Logger.InfoContext(ctx, "email verified", "identity_key", o.Account.IdentityKey)
	}
	return o
}

// ResendVerification issues a fresh token for an unverified local account and
// mails it. The previous token stops working.
func (r *Resolver) ResendVerification(ctx context.Context, email string) Outcome {
	ctx, span := r.begin(ctx, "ResendVerification")
	return r.end(ctx, span, "ResendVerification", r.resendVerification(ctx, email))
}

// reissueAttempts bounds retries when a concurrent verify or resend changes
// the pending token between our read and our write.
const reissueAttempts = 2

func (r *Resolver) resendVerification(ctx context.Context, email string) Outcome {
	if !IsValidEmail(email) {
		return rejected(ReasonInvalidEmail, "Invalid email format", "emailAddress")
	}

	for attempt := 0; attempt < reissueAttempts; attempt++ {
		account, err := r.Store.FindByKey(ctx, email)
		if errors.Is(err, ErrAccountNotFound) {
			return rejected(ReasonNotExisted, "No account with that email address", "emailAddress")
		} else if err != nil {
			return storageFailure(nil, err)
		}
		lc, ok := account.Local()
		if !ok || account.Verified {
			return rejected(ReasonAlreadyVerified, "Account is already verified", "emailAddress")
		}

		token, err := r.NewToken()
		if err != nil {
			return internalFailure(fmt.Errorf("issue verification token: %w", err))
		}
		current := lc.VerificationToken
		account, err = r.Store.Update(ctx, account.IdentityKey, AccountUpdate{
			VerificationToken:   &token,
			IfVerificationToken: &current,
		})
		if errors.Is(err, ErrTokenMismatch) {
			continue
		} else if errors.Is(err, ErrAccountNotFound) {
			return rejected(ReasonNotExisted, "No account with that email address", "emailAddress")
		} else if err != nil {
			return storageFailure(nil, err)
		}

		if err := r.Notifier.SendVerification(ctx, account.Email, token); err != nil {
			return mailFailure(account, err)
		}
		return updated(account)
	}
	return storageFailure(nil, fmt.Errorf("pending token kept changing: %w", ErrTokenMismatch))
}

// UpdateDisplayName changes the display name of the account at key.
func (r *Resolver) UpdateDisplayName(ctx context.Context, key, name string) Outcome {
	ctx, span := r.begin(ctx, "UpdateDisplayName")
	return r.end(ctx, span, "UpdateDisplayName", r.updateDisplayName(ctx, key, name))
}

func (r *Resolver) updateDisplayName(ctx context.Context, key, name string) Outcome {
	if !IsValidUsername(name) {
		return rejected(ReasonInvalidUsername, "Username is required", "newUsername")
	}
	account, err := r.Store.Update(ctx, key, AccountUpdate{DisplayName: &name})
	if err != nil {
		return r.updateFailure(err)
	}
	return updated(account)
}

// ChangePassword replaces the password of a local account after checking the
// current one.
func (r *Resolver) ChangePassword(ctx context.Context, key, oldPassword, newPassword string) Outcome {
	ctx, span := r.begin(ctx, "ChangePassword")
	return r.end(ctx, span, "ChangePassword", r.changePassword(ctx, key, oldPassword, newPassword))
}

func (r *Resolver) changePassword(ctx context.Context, key, oldPassword, newPassword string) Outcome {
	if !IsValidPassword(newPassword) {
		return rejected(ReasonInvalidPassword, passwordRulesMessage(newPassword), "newPassword")
	}
	account, err := r.Store.FindByKey(ctx, key)
	if errors.Is(err, ErrAccountNotFound) {
		return rejected(ReasonNotExisted, "account no longer exists", "")
	} else if err != nil {
		return storageFailure(nil, err)
	}
	lc, ok := account.Local()
	if !ok {
		return rejected(ReasonNotLocalAccount, "Password is managed by "+string(account.Provider()), "")
	}
	if !r.Hasher.Verify(oldPassword, lc.PasswordHash) {
		return rejected(ReasonInvalidPassword, "Incorrect password", "oldPassword")
	}

	digest, err := r.Hasher.Hash(newPassword)
	if errors.Is(err, ErrPasswordTooLong) {
		return rejected(ReasonInvalidPassword, "Password is too long", "newPassword")
	} else if err != nil {
		return internalFailure(fmt.Errorf("hash password: %w", err))
	}
	account, err = r.Store.Update(ctx, key, AccountUpdate{PasswordHash: &digest})
	if err != nil {
		return r.updateFailure(err)
	}
	r.Logger.InfoContext(ctx, "password changed", "identity_key", key)
	return updated(account)
}

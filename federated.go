package accounts

import (
	"context"
	"errors"
)

// FederatedLogin signs in with a profile vouched for by an OAuth provider.
// The first contact creates a verified account; later contacts authenticate
// it. Profile fields never overwrite stored ones.
func (r *Resolver) FederatedLogin(ctx context.Context, p FederatedProfile) Outcome {
	ctx, span := r.begin(ctx, "FederatedLogin")
	return r.end(ctx, span, "FederatedLogin", r.federatedLogin(ctx, p))
}

func (r *Resolver) federatedLogin(ctx context.Context, p FederatedProfile) Outcome {
	if !p.Provider.IsFederated() {
		return rejected(ReasonInvalidProfile, "Unsupported provider "+string(p.Provider), "provider")
	}
	if p.Subject == "" {
		return rejected(ReasonInvalidProfile, "Profile has no subject", "subject")
	}

	account, err := r.Store.FindByKey(ctx, p.Subject)
	if err == nil {
		return r.federatedReturn(ctx, account, p)
	} else if !errors.Is(err, ErrAccountNotFound) {
		return storageFailure(nil, err)
	}

	account = NewFederatedAccount(p, r.now())
	if err := r.Store.Create(ctx, account); err != nil {
		if !errors.Is(err, ErrAccountExists) {
			return storageFailure(nil, err)
		}
		// A concurrent first sign in won; treat this one as a returning login.
		existing, err := r.Store.FindByKey(ctx, p.Subject)
		if err != nil {
			return storageFailure(nil, err)
		}
		return r.federatedReturn(ctx, existing, p)
	}
	r.Logger.InfoContext(ctx, "federated account created",
		"identity_key", account.IdentityKey, "provider", p.Provider)
	return Outcome{Kind: OutcomeAuthenticated, Account: account, NewAccount: true}
}

func (r *Resolver) federatedReturn(ctx context.Context, account *Account, p FederatedProfile) Outcome {
	if account.Provider() != p.Provider {
		return rejected(ReasonProviderMismatch,
			"Identity is registered with "+string(account.Provider()), "provider")
	}
	return r.authenticate(ctx, account.IdentityKey, AccountUpdate{})
}

package accounts

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeAuthenticated OutcomeKind = iota + 1
	OutcomeCreated
	OutcomeUpdated
	OutcomeRejected
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of every Resolver operation.
//
//	Authenticated: Account is signed in; NewAccount is set when it was just created
//	Created:       Account exists but must verify before a session is granted
//	Updated:       a change was applied (resend, display name, password)
//	Rejected:      Rejection says why; nothing was mutated
//	Failed:        Err wraps ErrStorageUnavailable, ErrMailUnavailable or ErrInternal
//
// A Failed outcome may still carry the Account when the failure happened after
// the account was written.
type Outcome struct {
	Kind       OutcomeKind
	Account    *Account
	NewAccount bool
	Rejection  *AuthError
	Err        error
}

// Succeeded reports whether the operation took effect.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeAuthenticated || o.Kind == OutcomeCreated || o.Kind == OutcomeUpdated
}

// Reason returns the rejection reason or "".
func (o Outcome) Reason() Reason {
	if o.Rejection == nil {
		return ""
	}
	return o.Rejection.Code
}

// Error returns the outcome as an error, nil on success.
func (o Outcome) Error() error {
	switch o.Kind {
	case OutcomeRejected:
		return o.Rejection
	case OutcomeFailed:
		return o.Err
	}
	return nil
}

func authenticated(a *Account) Outcome {
	return Outcome{Kind: OutcomeAuthenticated, Account: a}
}

func created(a *Account) Outcome {
	return Outcome{Kind: OutcomeCreated, Account: a}
}

func updated(a *Account) Outcome {
	return Outcome{Kind: OutcomeUpdated, Account: a}
}

func rejected(code Reason, message, field string) Outcome {
	return Outcome{Kind: OutcomeRejected, Rejection: NewAuthError(code, message, field)}
}

func failed(a *Account, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Account: a, Err: err}
}

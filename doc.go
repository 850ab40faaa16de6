// Package accounts manages the identity and authentication lifecycle of a web
// application: local email/password signup with email verification, login,
// federated sign in through Google or Facebook, and session binding.
//
// # Architecture
//
// Account: the single entity. It is keyed by an IdentityKey that is the email
// address for local accounts and the provider subject for federated ones. Its
// AuthMethod is either LocalCredentials (password hash and pending
// verification token) or FederatedIdentity.
//
// Resolver: turns signups, logins, federated profiles and verification tokens
// into an Outcome (Authenticated, Created, Updated, Rejected or Failed). It
// depends on an AccountStore, a PasswordHasher and a Notifier.
//
// AccountStore: persistence contract. Stores must enforce uniqueness of
// identity keys and apply AccountUpdate atomically; see the stores
// sub-packages for memory, file, SQLite, Postgres, GORM and Datastore backends.
//
// SessionBinder and Sessions: keep only the identity key in an scs session and
// resolve the account again on every request.
//
// # Basic Usage
//
//	store := memory.New()
//	resolver := accounts.NewResolver(store, &accounts.ConsoleEmailSender{BaseURL: "http://localhost:8080/api"})
//
//	o := resolver.Signup(ctx, accounts.SignupRequest{
//	    Email:       "ann@example.com",
//	    Password:    "Aa123123!",
//	    DisplayName: "Ann",
//	})
//	// o.Kind == accounts.OutcomeCreated; the account must verify before logging in
//
//	o = resolver.Verify(ctx, token)
//	// o.Kind == accounts.OutcomeAuthenticated
//
// Set up HTTP handlers:
//
//	manager := scs.New()
//	sessions := accounts.NewSessions(manager, accounts.NewSessionBinder(store))
//	h := &accounts.Handlers{Resolver: resolver, Sessions: sessions}
//	mw := &accounts.Middleware{Sessions: sessions}
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("POST /api/users/{emailAddress}", h.Signup)
//	mux.HandleFunc("POST /auth/local", h.Login)
//	mux.HandleFunc("GET /api/users/verify", h.Verify)
//	mux.Handle("GET /api/users/current/info", mw.EnsureAccount(http.HandlerFunc(h.Me)))
//	http.ListenAndServe(":8080", manager.LoadAndSave(mux))
//
// # Security
//
// Passwords are hashed with bcrypt. Verification tokens are 32 random bytes,
// hex encoded, stay valid until consumed or reissued and can be consumed only
// once: the store applies the verify update conditionally on the token.
// Set Resolver.MaskLoginFailures to stop logins from revealing which email
// addresses are registered.
package accounts

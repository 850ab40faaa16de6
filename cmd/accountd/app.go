package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	ac "github.com/panyam/accounts"
	"github.com/panyam/accounts/config"
	"github.com/panyam/accounts/oauth2"
	"github.com/panyam/accounts/session/redisstore"
	"github.com/panyam/accounts/stores/fs"
	"github.com/panyam/accounts/stores/gae"
	gormstore "github.com/panyam/accounts/stores/gorm"
	"github.com/panyam/accounts/stores/memory"
	"github.com/panyam/accounts/stores/postgres"
	"github.com/panyam/accounts/stores/sqlite"
)

const shutdownTimeout = 10 * time.Second

// openStore returns the configured store and a function releasing it.
func openStore(ctx context.Context, cfg config.StoreConfig) (ac.AccountStore, func(), error) {
	noop := func() {}
	switch cfg.Driver {
	case config.StoreMemory:
		return memory.New(), noop, nil
	case config.StoreFS:
		return fs.NewFSAccountStore(cfg.Path), noop, nil
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreGorm:
		db, err := gorm.Open(gormpg.Open(cfg.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
		if err != nil {
			return nil, nil, fmt.Errorf("open gorm: %w", err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("migrate gorm: %w", err)
		}
		closeDB := noop
		if sqlDB, err := db.DB(); err == nil {
			closeDB = func() { _ = sqlDB.Close() }
		}
		return gormstore.NewAccountStore(db), closeDB, nil
	case config.StoreGAE:
		client, err := datastore.NewClient(ctx, cfg.Project)
		if err != nil {
			return nil, nil, fmt.Errorf("datastore client: %w", err)
		}
		return gae.NewAccountStore(client, cfg.Namespace), func() { _ = client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func newNotifier(cfg config.Config, logger *slog.Logger) ac.Notifier {
	if cfg.SMTP.Host == "" {
		return &ac.ConsoleEmailSender{BaseURL: cfg.BaseURL, Logger: logger}
	}
	return ac.NewSMTPSender(ac.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		BaseURL:  cfg.BaseURL,
	})
}

func newSessionManager(cfg config.SessionConfig) (*scs.SessionManager, func()) {
	manager := scs.New()
	manager.Lifetime = cfg.Lifetime
	manager.Cookie.Name = cfg.CookieName
	manager.Cookie.HttpOnly = true
	manager.Cookie.Secure = cfg.CookieSecure
	manager.Cookie.SameSite = http.SameSiteLaxMode
	if cfg.RedisAddr == "" {
		return manager, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	manager.Store = redisstore.New(client)
	return manager, func() { _ = client.Close() }
}

// server holds the wired components behind the router.
type server struct {
	resolver *ac.Resolver
	sessions *ac.Sessions
	bearer   *ac.BearerTokens
	handlers *ac.Handlers
	mw       *ac.Middleware
	google   *oauth2.GoogleOAuth2
	facebook *oauth2.FacebookOAuth2
}

func newServer(cfg config.Config, store ac.AccountStore, notifier ac.Notifier, manager *scs.SessionManager, logger *slog.Logger) *server {
	resolver := &ac.Resolver{
		Store:             store,
		Notifier:          notifier,
		Hasher:            ac.NewBcryptHasher(cfg.Auth.BcryptCost),
		Logger:            logger,
		MaskLoginFailures: cfg.Auth.MaskLoginFailures,
	}
	resolver.EnsureDefaults()

	binder := &ac.SessionBinder{Store: store, Logger: logger}
	sessions := ac.NewSessions(manager, binder)

	var bearer *ac.BearerTokens
	if cfg.JWT.Secret != "" {
		bearer = &ac.BearerTokens{Secret: []byte(cfg.JWT.Secret), Issuer: cfg.JWT.Issuer, TTL: cfg.JWT.TTL}
	}

	s := &server{
		resolver: resolver,
		sessions: sessions,
		bearer:   bearer,
		handlers: (&ac.Handlers{
			Resolver: resolver,
			Sessions: sessions,
			Bearer:   bearer,
			PathVar:  func(r *http.Request, name string) string { return mux.Vars(r)[name] },
			Logger:   logger,
		}).EnsureDefaults(),
		mw: &ac.Middleware{Sessions: sessions, Bearer: bearer, Binder: binder, Logger: logger},
	}
	if cfg.Google.Enabled() {
		s.google = oauth2.NewGoogleOAuth2(providerConfig(cfg.Google), s.completeFederated)
		s.google.Logger = logger
	}
	if cfg.Facebook.Enabled() {
		s.facebook = oauth2.NewFacebookOAuth2(providerConfig(cfg.Facebook), s.completeFederated)
		s.facebook.Logger = logger
	}
	return s
}

func providerConfig(p config.ProviderConfig) oauth2.Config {
	return oauth2.Config{ClientId: p.ClientID, ClientSecret: p.ClientSecret, CallbackURL: p.RedirectURL}
}

// completeFederated honours a callbackURL remembered when the flow started.
func (s *server) completeFederated(w http.ResponseWriter, r *http.Request, p ac.FederatedProfile) {
	h := *s.handlers
	if next := oauth2.CallbackURL(r); next != "" {
		h.SuccessRedirectURL = next
	}
	h.CompleteFederated(w, r, p)
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	h := s.handlers

	r.HandleFunc("/api/users/verify", h.Verify).Methods(http.MethodGet)
	r.HandleFunc("/api/users/verify/resend", h.ResendVerification).Methods(http.MethodPost)

	current := r.PathPrefix("/api/users/current").Subrouter()
	current.Use(s.mw.EnsureAccount)
	current.HandleFunc("/info", h.Me).Methods(http.MethodGet)
	current.HandleFunc("/info", h.UpdateDisplayName).Methods(http.MethodPut)
	current.HandleFunc("/password", h.ChangePassword).Methods(http.MethodPut)

	r.HandleFunc("/api/users/{emailAddress}", h.Signup).Methods(http.MethodPost)

	r.HandleFunc("/auth/local", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/auth/signout", h.Logout).Methods(http.MethodGet, http.MethodPost)
	if s.google != nil {
		r.HandleFunc("/auth/google", s.google.Redirect).Methods(http.MethodGet)
		r.HandleFunc("/auth/google/callback", s.google.Callback).Methods(http.MethodGet)
	}
	if s.facebook != nil {
		r.HandleFunc("/auth/facebook", s.facebook.Redirect).Methods(http.MethodGet)
		r.HandleFunc("/auth/facebook/callback", s.facebook.Callback).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	return s.sessions.Manager.LoadAndSave(r)
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer closeStore()

	manager, closeSessions := newSessionManager(cfg.Sess)
	defer closeSessions()

	s := newServer(cfg, store, newNotifier(cfg, logger), manager, logger)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "store", cfg.Store.Driver)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

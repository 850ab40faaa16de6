// Package config loads accountd configuration from ACCOUNTS_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StoreFS       = "fs"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreGorm     = "gorm"
	StoreGAE      = "gae"
)

type Config struct {
	Addr    string `env:"ACCOUNTS_ADDR"     envDefault:":8080"`
	BaseURL string `env:"ACCOUNTS_BASE_URL" envDefault:"http://localhost:8080"`

	Store StoreConfig
	Auth  AuthConfig
	Sess  SessionConfig
	JWT   JWTConfig
	SMTP  SMTPConfig

	Google   ProviderConfig `envPrefix:"ACCOUNTS_GOOGLE_"`
	Facebook ProviderConfig `envPrefix:"ACCOUNTS_FACEBOOK_"`
}

type StoreConfig struct {
	Driver string `env:"ACCOUNTS_STORE"      envDefault:"memory"`
	Path   string `env:"ACCOUNTS_STORE_PATH" envDefault:"./data"`
	DSN    string `env:"ACCOUNTS_STORE_DSN"`

	// Datastore
	Project   string `env:"ACCOUNTS_GAE_PROJECT"`
	Namespace string `env:"ACCOUNTS_GAE_NAMESPACE"`
}

type AuthConfig struct {
	BcryptCost        int  `env:"ACCOUNTS_BCRYPT_COST"         envDefault:"10"`
	MaskLoginFailures bool `env:"ACCOUNTS_MASK_LOGIN_FAILURES" envDefault:"false"`
}

type SessionConfig struct {
	Lifetime     time.Duration `env:"ACCOUNTS_SESSION_LIFETIME"      envDefault:"24h"`
	CookieName   string        `env:"ACCOUNTS_SESSION_COOKIE"        envDefault:"accounts_session"`
	CookieSecure bool          `env:"ACCOUNTS_SESSION_COOKIE_SECURE" envDefault:"false"`
	RedisAddr    string        `env:"ACCOUNTS_REDIS_ADDR"`
}

type JWTConfig struct {
	Secret string        `env:"ACCOUNTS_JWT_SECRET"`
	Issuer string        `env:"ACCOUNTS_JWT_ISSUER" envDefault:"accounts"`
	TTL    time.Duration `env:"ACCOUNTS_JWT_TTL"    envDefault:"15m"`
}

// SMTPConfig leaves Host empty to log verification mail instead of sending it.
type SMTPConfig struct {
	Host     string `env:"ACCOUNTS_SMTP_HOST"`
	Port     int    `env:"ACCOUNTS_SMTP_PORT"     envDefault:"587"`
	Username string `env:"ACCOUNTS_SMTP_USERNAME"`
	Password string `env:"ACCOUNTS_SMTP_PASSWORD"`
	From     string `env:"ACCOUNTS_SMTP_FROM"     envDefault:"no-reply@localhost"`
}

type ProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Load parses the process environment.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses environment, or the process environment when nil.
func LoadFrom(environment map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	cfg.Google.fillRedirect(cfg.BaseURL, "google")
	cfg.Facebook.fillRedirect(cfg.BaseURL, "facebook")
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (p *ProviderConfig) fillRedirect(baseURL, name string) {
	if p.RedirectURL == "" {
		p.RedirectURL = baseURL + "/auth/" + name + "/callback"
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case StoreMemory:
	case StoreFS, StoreSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("ACCOUNTS_STORE_PATH is required for the %s store", c.Store.Driver))
		}
	case StorePostgres, StoreGorm:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("ACCOUNTS_STORE_DSN is required for the %s store", c.Store.Driver))
		}
	case StoreGAE:
		if c.Store.Project == "" {
			errs = append(errs, errors.New("ACCOUNTS_GAE_PROJECT is required for the gae store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("ACCOUNTS_BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Sess.Lifetime <= 0 {
		errs = append(errs, errors.New("ACCOUNTS_SESSION_LIFETIME must be positive"))
	}
	if c.JWT.Secret != "" && len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("ACCOUNTS_JWT_SECRET must be at least 32 bytes"))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("ACCOUNTS_JWT_TTL must be positive"))
	}
	return errors.Join(errs...)
}

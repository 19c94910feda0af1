package internal

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Auth modes for the worker control surface.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Worker WorkerConfig      `yaml:"worker"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Client ClientConfig      `yaml:"client"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Worker.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Client.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WorkerConfig describes the offline cache worker.
//
// Origin is the app origin the worker proxies. Bumping Version retires every
// cache of the previous version on the next activation.
type WorkerConfig struct {
	Origin       string        `yaml:"origin"`
	CachePrefix  string        `yaml:"cache_prefix"`
	Version      string        `yaml:"version"`
	Precache     []string      `yaml:"precache"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// Validate validates the worker configuration.
func (c *WorkerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Origin, validation.Required, is.URL),
		validation.Field(&c.CachePrefix, validation.Required),
		validation.Field(&c.Version, validation.Required),
		validation.Field(&c.FetchTimeout, validation.Min(time.Duration(0))),
	)
}

// OriginURL parses Origin.
func (c *WorkerConfig) OriginURL() (*url.URL, error) {
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, fmt.Errorf("worker: parse origin: %w", err)
	}
	return u, nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig protects the /__worker control routes.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// ClientConfig holds settings for the client commands (login, links, mcp).
type ClientConfig struct {
	APIURL      string `yaml:"api_url"`
	IdentityURL string `yaml:"identity_url"`
	AppOrigin   string `yaml:"app_origin"`
	StateDir    string `yaml:"state_dir"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIURL, validation.Required, is.URL),
		validation.Field(&c.IdentityURL, validation.Required, is.URL),
		validation.Field(&c.AppOrigin, validation.Required, is.URL),
		validation.Field(&c.StateDir, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Worker: WorkerConfig{
			Origin:      "http://localhost:3000",
			CachePrefix: "vault-links",
			Version:     "v1.0.0",
			Precache: []string{
				"/",
				"/static/js/bundle.js",
				"/static/css/main.css",
				"/manifest.json",
				"https://cdn.tailwindcss.com/3.4.17/tailwind.min.css",
			},
			FetchTimeout: 30 * time.Second,
		},
		SQLite: SQLiteConfig{
			Path: "./vaultlinks-cache.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Client: ClientConfig{
			APIURL:      "http://localhost:8001/api",
			IdentityURL: "https://auth.emergentagent.com",
			AppOrigin:   "http://localhost:8080",
			StateDir:    "./.vaultlinks",
		},
	}
}

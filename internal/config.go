package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Cache backends.
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendBolt   = "bolt"
	CacheBackendMemory = "memory"
)

// Config represents the application configuration.
type Config struct {
	App          ApplicationConfig  `yaml:"app"`
	ContentStore ContentStoreConfig `yaml:"content_store"`
	Cache        CacheConfig        `yaml:"cache"`
	Identity     IdentityConfig     `yaml:"identity"`
	Directory    DirectoryConfig    `yaml:"directory"`
	Secrets      SecretsConfig      `yaml:"secrets"`
	Discord      DiscordConfig      `yaml:"discord"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.ContentStore.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if err := c.Directory.Validate(); err != nil {
		return err
	}
	return c.Secrets.Validate()
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

// ContentStoreConfig locates the content repository and the server's
// default write token.
type ContentStoreConfig struct {
	Owner     string `yaml:"owner"`
	Repo      string `yaml:"repo"`
	Branch    string `yaml:"branch"`
	Token     string `yaml:"token"`
	PostsDir  string `yaml:"posts_dir"`
	PagesDir  string `yaml:"pages_dir"`
	AssetsDir string `yaml:"assets_dir"`
}

// Validate validates the content store configuration.
func (c *ContentStoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Owner, validation.Required),
		validation.Field(&c.Repo, validation.Required),
		validation.Field(&c.Branch, validation.Required),
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.PostsDir, validation.Required),
	)
}

// CacheConfig selects the key-value store backend.
//
// Backend controls where cache entries, invite codes, tokens and audit
// entries live:
//   - "sqlite" (default): single-file SQLite database; Path required.
//   - "bolt": single-file bbolt database; Path required.
//   - "memory": process-local, lost on restart; for dev and tests.
type CacheConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = CacheBackendSQLite
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required,
			validation.In(CacheBackendSQLite, CacheBackendBolt, CacheBackendMemory)),
	); err != nil {
		return err
	}
	if c.Backend != CacheBackendMemory && c.Path == "" {
		return fmt.Errorf("cache: backend is %q but path is empty", c.Backend)
	}
	return nil
}

// IdentityConfig holds the identity provider API key.
type IdentityConfig struct {
	APIKey string `yaml:"api_key"`
}

// Validate validates the identity configuration.
func (c *IdentityConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIKey, validation.Required),
	)
}

// DirectoryConfig locates the membership sheet. ServiceAccountKey is
// the service-account key file content as JSON, typically injected via
// environment expansion.
type DirectoryConfig struct {
	SpreadsheetID     string        `yaml:"spreadsheet_id"`
	ServiceAccountKey string        `yaml:"service_account_key"`
	SnapshotTTL       time.Duration `yaml:"snapshot_ttl"`
}

// Validate validates the directory configuration.
func (c *DirectoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SpreadsheetID, validation.Required),
		validation.Field(&c.ServiceAccountKey, validation.Required),
	)
}

// SecretsConfig holds the passphrase protecting stored user tokens.
type SecretsConfig struct {
	Passphrase string `yaml:"passphrase"`
}

// Validate validates the secrets configuration.
func (c *SecretsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Passphrase, validation.Required),
	)
}

// DiscordConfig holds the community server invite URL handed to
// verified members. Optional.
type DiscordConfig struct {
	InviteURL string `yaml:"invite_url"`
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
		ContentStore: ContentStoreConfig{
			Branch:    "main",
			PostsDir:  "posts",
			AssetsDir: "assets",
		},
		Cache: CacheConfig{
			Backend: CacheBackendSQLite,
			Path:    "./ansuz.db",
		},
		Directory: DirectoryConfig{
			SnapshotTTL: 24 * time.Hour,
		},
	}
}

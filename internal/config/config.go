// Package config handles the configuration directory, file paths and settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppName is the application directory name.
	AppName = "prepsync"

	// OAuthClientFile is the OAuth client credentials filename.
	OAuthClientFile = "oauth_client.json"

	// SettingsFile is the optional settings filename.
	SettingsFile = "settings.yaml"

	// SessionFile is the durable session store for the file backend.
	SessionFile = "session.json"

	// SessionDBFile is the durable session store for the sqlite backend.
	SessionDBFile = "session.sqlite"
)

// Storage backends for the durable session store.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Defaults applied when settings.yaml omits a value.
const (
	DefaultAPIURL         = "http://localhost:3000"
	DefaultTokenLifetime  = 3600 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultLogLevel       = "warn"
)

// Settings mirrors settings.yaml.
type Settings struct {
	APIURL            string `yaml:"api_url"`
	Storage           string `yaml:"storage"`
	TokenLifetimeSec  int    `yaml:"token_lifetime_sec"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	LogLevel          string `yaml:"log_level"`
}

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	// Settings is the parsed settings.yaml with defaults applied.
	Settings Settings
}

// New creates a new Config with the default or specified config directory.
// If configDir is empty, uses XDG_CONFIG_HOME/prepsync or $HOME/.config/prepsync.
// A missing settings.yaml is not an error.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	cfg := &Config{Dir: dir}
	if err := cfg.LoadSettings(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// LoadSettings reads settings.yaml from the config directory and applies defaults.
func (c *Config) LoadSettings() error {
	var s Settings
	data, err := os.ReadFile(c.SettingsPath())
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid %s: %w", SettingsFile, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("failed to read %s: %w", SettingsFile, err)
	}
	s.applyDefaults()
	if s.Storage != StorageFile && s.Storage != StorageSQLite {
		return fmt.Errorf("invalid %s: unknown storage %q", SettingsFile, s.Storage)
	}
	c.Settings = s
	return nil
}

func (s *Settings) applyDefaults() {
	if s.APIURL == "" {
		s.APIURL = DefaultAPIURL
	}
	if s.Storage == "" {
		s.Storage = StorageFile
	}
	if s.TokenLifetimeSec <= 0 {
		s.TokenLifetimeSec = int(DefaultTokenLifetime / time.Second)
	}
	if s.RequestTimeoutSec <= 0 {
		s.RequestTimeoutSec = int(DefaultRequestTimeout / time.Second)
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
}

// TokenLifetime returns the configured bearer token lifetime.
func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.Settings.TokenLifetimeSec) * time.Second
}

// RequestTimeout returns the per-call API timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Settings.RequestTimeoutSec) * time.Second
}

// OAuthClientPath returns the path to the OAuth client credentials file.
func (c *Config) OAuthClientPath() string {
	return filepath.Join(c.Dir, OAuthClientFile)
}

// SettingsPath returns the path to settings.yaml.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Dir, SettingsFile)
}

// SessionPath returns the path of the durable session store for the
// configured storage backend.
func (c *Config) SessionPath() string {
	if c.Settings.Storage == StorageSQLite {
		return filepath.Join(c.Dir, SessionDBFile)
	}
	return filepath.Join(c.Dir, SessionFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasOAuthClient checks if the OAuth client credentials file exists.
func (c *Config) HasOAuthClient() bool {
	_, err := os.Stat(c.OAuthClientPath())
	return err == nil
}

// HasSession checks if the session store exists.
func (c *Config) HasSession() bool {
	_, err := os.Stat(c.SessionPath())
	return err == nil
}

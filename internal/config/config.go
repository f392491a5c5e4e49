// Package config loads vaultsync settings from config.yaml in the data
// directory, then applies VAULTSYNC_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/forest6511/vaultsync/pkg/crypto"
	"github.com/forest6511/vaultsync/pkg/search"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// FileName is the name of the config file inside the data directory.
const FileName = "config.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VAULTSYNC"

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

var (
	// ErrConfigInsecure is returned when the config file is readable by others.
	ErrConfigInsecure = errors.New("config file has insecure permissions")
	// ErrConfigSymlink is returned when the config file is a symlink.
	ErrConfigSymlink = errors.New("config file is a symlink")
	// ErrConfigNotOwnedByUser is returned when the config file belongs to another user.
	ErrConfigNotOwnedByUser = errors.New("config file not owned by current user")

	errConfigNotFound = errors.New("config file not found")
)

// StorageConfig selects the key-value store.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	// Path is relative to the data directory unless absolute.
	Path string `yaml:"path"`
}

// Config holds the settings of the CLI and its stores.
// Environment names derive from field names, e.g. VAULTSYNC_STORAGE_DRIVER
// or VAULTSYNC_KDF_ITERATIONS.
type Config struct {
	Storage            StorageConfig    `yaml:"storage"`
	LogLevel           string           `yaml:"log_level" split_words:"true"`
	KDF                crypto.KDFParams `yaml:"kdf"`
	TombstoneRetention time.Duration    `yaml:"tombstone_retention" split_words:"true"`
	SearchThreshold    float64          `yaml:"search_threshold" split_words:"true"`
	// AttachmentQuota is in bytes. Zero or less means unlimited.
	AttachmentQuota int64 `yaml:"attachment_quota" split_words:"true"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Storage:            StorageConfig{Driver: DriverSQLite, Path: "vault.db"},
		LogLevel:           "warn",
		KDF:                crypto.DefaultKDFParams(),
		TombstoneRetention: vault.DefaultTombstoneRetention,
		SearchThreshold:    search.DefaultThreshold,
	}
}

// DefaultDir returns $VAULTSYNC_HOME or ~/.vaultsync.
func DefaultDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".vaultsync"), nil
}

// Load reads dir/config.yaml when present and applies environment overrides.
//
// The file is opened without following symlinks and must be 0600 and owned
// by the current user. Checks run on the opened descriptor.
func Load(dir string) (*Config, error) {
	cfg := Default()

	f, err := openConfigFile(filepath.Join(dir, FileName))
	switch {
	case errors.Is(err, errConfigNotFound):
	case err != nil:
		return nil, err
	default:
		defer f.Close()
		if err := readFile(f, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(f *os.File, cfg *Config) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("%w: %o (expected 0600)", ErrConfigInsecure, perm)
	}
	if err := checkFileOwnership(info); err != nil {
		return err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Save writes cfg to dir/config.yaml with 0600 permissions.
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverBolt:
	default:
		return fmt.Errorf("unsupported storage driver: %q (must be %q or %q)", c.Storage.Driver, DriverSQLite, DriverBolt)
	}
	if c.Storage.Path == "" {
		return errors.New("storage path must not be empty")
	}
	if c.SearchThreshold <= 0 || c.SearchThreshold > 1 {
		return fmt.Errorf("search_threshold must be in (0, 1], got %v", c.SearchThreshold)
	}
	if c.TombstoneRetention <= 0 {
		return fmt.Errorf("tombstone_retention must be positive, got %s", c.TombstoneRetention)
	}
	return nil
}

// StoragePath resolves the storage path against dir.
func (c *Config) StoragePath(dir string) string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(dir, c.Storage.Path)
}

// Package config provides configuration management for the download manager.
// It handles loading, validating, and saving application settings such as
// cache locations, tier toggles and network behavior. The package supports
// YAML configuration files and provides sensible defaults so an empty or
// missing file still yields a working setup.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SysdataSpA/Docker/pkg/errors"
	"github.com/SysdataSpA/Docker/pkg/fsutil"
)

// Config represents the application configuration.
type Config struct {
	Settings Settings `yaml:"settings"`
}

// Settings represents general application settings.
type Settings struct {
	// Storage locations. Empty values fall back to the per-user data
	// directory.
	CacheDir   string `yaml:"cache_dir,omitempty"`
	BundleDir  string `yaml:"bundle_dir,omitempty"`
	LedgerPath string `yaml:"ledger_path,omitempty"`

	// Freshness and network settings.
	ExpirationInterval time.Duration `yaml:"expiration_interval"`
	HTTPTimeout        time.Duration `yaml:"http_timeout"`
	MaxConcurrent      int           `yaml:"max_concurrent_downloads"`
	UserAgent          string        `yaml:"user_agent,omitempty"`

	// Tier toggles. Pointers distinguish "omitted" from an explicit false
	// so unset values can default to enabled.
	MemoryCache      *bool `yaml:"memory_cache,omitempty"`
	FileSystemCache  *bool `yaml:"filesystem_cache,omitempty"`
	BundleLookup     *bool `yaml:"bundle_lookup,omitempty"`
	HeadValidation   *bool `yaml:"head_validation,omitempty"`
	ExpirationLedger *bool `yaml:"expiration_ledger,omitempty"`
	MemoryEntries    int   `yaml:"memory_cache_entries,omitempty"`

	// Output settings.
	LogLevel string `yaml:"log_level"` // panic, fatal, error, warn, info, debug, trace
}

// Default configuration values.
const (
	// DefaultExpirationInterval is how long a downloaded resource stays
	// fresh before it is revalidated against the server.
	DefaultExpirationInterval = 2 * time.Hour

	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 120 * time.Second

	// DefaultMaxConcurrent is the default number of parallel batch workers.
	DefaultMaxConcurrent = 4

	// DefaultMemoryEntries is the default capacity of the in-memory tier.
	DefaultMemoryEntries = 256

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	cacheDir, err := fsutil.GetDownloadDir()
	if err != nil {
		// Fallback to current directory if we can't determine the user dir
		cacheDir = filepath.Join(".", "cache", "downloads")
	}
	bundleDir, err := fsutil.GetSeedDir()
	if err != nil {
		bundleDir = filepath.Join(".", "seed_resources")
	}

	return &Config{
		Settings: Settings{
			CacheDir:           cacheDir,
			BundleDir:          bundleDir,
			LedgerPath:         filepath.Join(filepath.Dir(cacheDir), "expiration.yaml"),
			ExpirationInterval: DefaultExpirationInterval,
			HTTPTimeout:        DefaultHTTPTimeout,
			MaxConcurrent:      DefaultMaxConcurrent,
			MemoryEntries:      DefaultMemoryEntries,
			LogLevel:           "info",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file is not an
// error; it yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve config path")
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigValidation, err.Error())
	}

	return &config, nil
}

// SaveConfig saves configuration to a file.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "failed to resolve config path")
	}

	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeDefault); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	tempPath := absPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeDefault)
	if err != nil {
		return errors.Wrap(err, "failed to create config file")
	}

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)

	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return errors.Wrap(err, "failed to encode config")
	}

	_ = encoder.Close()
	_ = file.Close()

	// Atomically replace the config file
	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(err, "failed to replace config file")
	}

	if err := os.Chmod(absPath, fsutil.FileModeDefault); err != nil {
		return errors.Wrap(err, "failed to set config file permissions")
	}

	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}
	return data, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	s := c.Settings
	if s.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout cannot be negative")
	}
	if s.ExpirationInterval < 0 {
		return fmt.Errorf("expiration_interval cannot be negative")
	}
	if s.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent_downloads must be at least 1")
	}
	if s.MemoryEntries < 1 {
		return fmt.Errorf("memory_cache_entries must be at least 1")
	}
	validLevels := map[string]bool{
		"panic": true, "fatal": true, "error": true, "warn": true,
		"info": true, "debug": true, "trace": true,
	}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return fmt.Errorf("invalid log level: %s", s.LogLevel)
	}
	return nil
}

// MemoryCacheEnabled reports whether the in-memory tier is active.
func (c *Config) MemoryCacheEnabled() bool { return boolOrDefault(c.Settings.MemoryCache, true) }

// FileSystemCacheEnabled reports whether the filesystem tier is active.
func (c *Config) FileSystemCacheEnabled() bool { return boolOrDefault(c.Settings.FileSystemCache, true) }

// BundleLookupEnabled reports whether the read-only seed tier is consulted.
func (c *Config) BundleLookupEnabled() bool { return boolOrDefault(c.Settings.BundleLookup, false) }

// HeadValidationEnabled reports whether expired resources are revalidated
// with a conditional HEAD request before re-download.
func (c *Config) HeadValidationEnabled() bool { return boolOrDefault(c.Settings.HeadValidation, true) }

// ExpirationLedgerEnabled reports whether download freshness is tracked.
func (c *Config) ExpirationLedgerEnabled() bool {
	return boolOrDefault(c.Settings.ExpirationLedger, true)
}

// GetCacheDir returns the downloaded-resource directory from settings.
func (c *Config) GetCacheDir() string { return c.Settings.CacheDir }

// GetBundleDir returns the seed resource directory from settings.
func (c *Config) GetBundleDir() string { return c.Settings.BundleDir }

// GetLedgerPath returns the expiration ledger file path from settings.
func (c *Config) GetLedgerPath() string { return c.Settings.LedgerPath }

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "docker", "config.yaml"), nil
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Settings.CacheDir == "" {
		c.Settings.CacheDir = defaults.Settings.CacheDir
	}
	if c.Settings.BundleDir == "" {
		c.Settings.BundleDir = defaults.Settings.BundleDir
	}
	if c.Settings.LedgerPath == "" {
		c.Settings.LedgerPath = defaults.Settings.LedgerPath
	}
	if c.Settings.ExpirationInterval == 0 {
		c.Settings.ExpirationInterval = defaults.Settings.ExpirationInterval
	}
	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = defaults.Settings.HTTPTimeout
	}
	if c.Settings.MaxConcurrent == 0 {
		c.Settings.MaxConcurrent = defaults.Settings.MaxConcurrent
	}
	if c.Settings.MemoryEntries == 0 {
		c.Settings.MemoryEntries = defaults.Settings.MemoryEntries
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

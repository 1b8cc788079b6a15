package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for budgetsync.
type Config struct {
	DeviceID   string           `toml:"device_id"`
	Author     string           `toml:"author"`
	ShareCode  string           `toml:"share_code"` // not secret; the password is never stored
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Remotes    []RemoteConfig   `toml:"remotes"`
	Backup     BackupConfig     `toml:"backup"`
	History    HistoryConfig    `toml:"history"`
	Audit      AuditConfig      `toml:"audit"`
	Sync       SyncConfig       `toml:"sync"`
}

// EncryptionConfig selects how cloud payloads are encrypted.
type EncryptionConfig struct {
	Type string `toml:"type"` // "age" (default) or "test"

	// ScryptWorkFactor is the log2 scrypt cost for age. The key material is
	// already stretched by PBKDF2, so this stays low.
	ScryptWorkFactor int `toml:"scrypt_work_factor,omitempty"`
}

// RemoteConfig represents configuration for a remote snapshot store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible services

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// DatabaseConfig represents configuration for the local store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// BackupConfig controls automatic pre-sync backups.
type BackupConfig struct {
	Disabled   bool `toml:"disabled"`
	MaxBackups int  `toml:"max_backups"`
}

// HistoryConfig controls the change-history ledger.
type HistoryConfig struct {
	MaxRecentCommits    int    `toml:"max_recent_commits"`
	MaxDevicesPerAuthor int    `toml:"max_devices_per_author"`
	DeviceLookback      int    `toml:"device_lookback"`
	AnalysisRange       string `toml:"analysis_range"` // Go duration, e.g. "720h"
}

// AuditConfig controls the API audit trail.
type AuditConfig struct {
	MaxEntries int `toml:"max_entries"`
}

// SyncConfig controls sync scheduling and direction.
type SyncConfig struct {
	// SharedBudget marks a device that joined an existing budget by share code.
	// Such devices prefer downloading when the direction is otherwise unclear.
	SharedBudget   bool   `toml:"shared_budget"`
	Remote         string `toml:"remote,omitempty"` // name of the remote to sync with; defaults to the first
	DebounceNormal string `toml:"debounce_normal"`
	DebounceHigh   string `toml:"debounce_high"`
}

// Defaults applied by WithDefaults.
const (
	DefaultMaxBackups          = 5
	DefaultMaxRecentCommits    = 1000
	DefaultMaxDevicesPerAuthor = 3
	DefaultDeviceLookback      = 10
	DefaultAnalysisRange       = 30 * 24 * time.Hour
	DefaultMaxAuditEntries     = 1000
	DefaultDebounceNormal      = 10 * time.Second
	DefaultDebounceHigh        = 2 * time.Second
	DefaultScryptWorkFactor    = 15
)

// NewConfig creates a new Config with the provided values and default settings.
func NewConfig(deviceID, author, baseDir string) *Config {
	cfg := &Config{
		DeviceID: deviceID,
		Author:   author,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Encryption: EncryptionConfig{
			Type: "age",
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Remotes: []RemoteConfig{{
			Type:   "filesystem",
			Name:   "local",
			FSRoot: filepath.Join(baseDir, "remote"),
		}},
	}
	return cfg.WithDefaults()
}

// WithDefaults fills every unset limit and duration with its default and returns cfg.
func (cfg *Config) WithDefaults() *Config {
	if cfg.Encryption.Type == "" {
		cfg.Encryption.Type = "age"
	}
	if cfg.Encryption.ScryptWorkFactor == 0 {
		cfg.Encryption.ScryptWorkFactor = DefaultScryptWorkFactor
	}
	if cfg.Backup.MaxBackups <= 0 {
		cfg.Backup.MaxBackups = DefaultMaxBackups
	}
	if cfg.History.MaxRecentCommits <= 0 {
		cfg.History.MaxRecentCommits = DefaultMaxRecentCommits
	}
	if cfg.History.MaxDevicesPerAuthor <= 0 {
		cfg.History.MaxDevicesPerAuthor = DefaultMaxDevicesPerAuthor
	}
	if cfg.History.DeviceLookback <= 0 {
		cfg.History.DeviceLookback = DefaultDeviceLookback
	}
	if cfg.History.AnalysisRange == "" {
		cfg.History.AnalysisRange = DefaultAnalysisRange.String()
	}
	if cfg.Audit.MaxEntries <= 0 {
		cfg.Audit.MaxEntries = DefaultMaxAuditEntries
	}
	if cfg.Sync.DebounceNormal == "" {
		cfg.Sync.DebounceNormal = DefaultDebounceNormal.String()
	}
	if cfg.Sync.DebounceHigh == "" {
		cfg.Sync.DebounceHigh = DefaultDebounceHigh.String()
	}
	return cfg
}

// Validate checks the fields WithDefaults cannot fill.
func (cfg *Config) Validate() error {
	if cfg.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	for _, f := range []struct {
		name, value string
	}{
		{"history.analysis_range", cfg.History.AnalysisRange},
		{"sync.debounce_normal", cfg.Sync.DebounceNormal},
		{"sync.debounce_high", cfg.Sync.DebounceHigh},
	} {
		if f.value == "" {
			continue
		}
		if _, err := time.ParseDuration(f.value); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return nil
}

// Duration parses s, falling back to def when s is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Remote returns the remote named name, or the first remote when name is empty.
func (cfg *Config) Remote(name string) (RemoteConfig, error) {
	if len(cfg.Remotes) == 0 {
		return RemoteConfig{}, fmt.Errorf("no remotes configured")
	}
	if name == "" {
		return cfg.Remotes[0], nil
	}
	for _, r := range cfg.Remotes {
		if r.Name == name {
			return r, nil
		}
	}
	return RemoteConfig{}, fmt.Errorf("remote %q not configured", name)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// Save overwrites the config at path.
func Save(path string, cfg *Config) error {
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		DeviceID:  "device-abc",
		Author:    "Sam",
		ShareCode: "abandon ability able about",
		BaseDir:   "/home/user/.local/share/budgetsync",
		LogDir:    "/home/user/.local/share/budgetsync/log",
		Remotes: []RemoteConfig{
			{Type: "filesystem", Name: "local", FSRoot: "/srv/budgets"},
			{Type: "s3", Name: "cloud", S3Bucket: "family-budgets", S3Region: "us-east-1"},
		},
		Encryption: EncryptionConfig{Type: "age", ScryptWorkFactor: 12},
		Database:   DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/budgetsync/data"},
		Backup:     BackupConfig{MaxBackups: 7},
		History:    HistoryConfig{MaxRecentCommits: 50, AnalysisRange: "48h"},
		Audit:      AuditConfig{MaxEntries: 10},
		Sync:       SyncConfig{SharedBudget: true, DebounceHigh: "1s"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.DeviceID != original.DeviceID {
		t.Errorf("DeviceID = %q, want %q", got.DeviceID, original.DeviceID)
	}
	if got.Author != "Sam" {
		t.Errorf("Author = %q, want %q", got.Author, "Sam")
	}
	if got.ShareCode != original.ShareCode {
		t.Errorf("ShareCode = %q, want %q", got.ShareCode, original.ShareCode)
	}
	if len(got.Remotes) != 2 {
		t.Fatalf("len(Remotes) = %d, want 2", len(got.Remotes))
	}
	if got.Remotes[0].FSRoot != "/srv/budgets" {
		t.Errorf("Remotes[0].FSRoot = %q, want %q", got.Remotes[0].FSRoot, "/srv/budgets")
	}
	if got.Remotes[1].S3Bucket != "family-budgets" {
		t.Errorf("Remotes[1].S3Bucket = %q, want %q", got.Remotes[1].S3Bucket, "family-budgets")
	}
	if got.Encryption.ScryptWorkFactor != 12 {
		t.Errorf("Encryption.ScryptWorkFactor = %d, want 12", got.Encryption.ScryptWorkFactor)
	}
	if got.Backup.MaxBackups != 7 {
		t.Errorf("Backup.MaxBackups = %d, want 7", got.Backup.MaxBackups)
	}
	if got.History.AnalysisRange != "48h" {
		t.Errorf("History.AnalysisRange = %q, want %q", got.History.AnalysisRange, "48h")
	}
	if !got.Sync.SharedBudget {
		t.Error("Sync.SharedBudget = false, want true")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("device-1", "Alex", "/data/budgetsync")

	if cfg.DeviceID != "device-1" {
		t.Errorf("DeviceID = %q, want %q", cfg.DeviceID, "device-1")
	}
	if cfg.LogDir != "/data/budgetsync/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/budgetsync/log")
	}
	if cfg.Database.DataDir != "/data/budgetsync/data" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/budgetsync/data")
	}
	if len(cfg.Remotes) != 1 || cfg.Remotes[0].FSRoot != "/data/budgetsync/remote" {
		t.Errorf("Remotes = %+v, want one filesystem remote under base dir", cfg.Remotes)
	}
	if cfg.Backup.MaxBackups != DefaultMaxBackups {
		t.Errorf("Backup.MaxBackups = %d, want %d", cfg.Backup.MaxBackups, DefaultMaxBackups)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := (&Config{History: HistoryConfig{MaxRecentCommits: 25}}).WithDefaults()

	if cfg.History.MaxRecentCommits != 25 {
		t.Errorf("MaxRecentCommits = %d, want explicit value 25 kept", cfg.History.MaxRecentCommits)
	}
	if cfg.History.MaxDevicesPerAuthor != DefaultMaxDevicesPerAuthor {
		t.Errorf("MaxDevicesPerAuthor = %d, want %d", cfg.History.MaxDevicesPerAuthor, DefaultMaxDevicesPerAuthor)
	}
	if cfg.Audit.MaxEntries != DefaultMaxAuditEntries {
		t.Errorf("Audit.MaxEntries = %d, want %d", cfg.Audit.MaxEntries, DefaultMaxAuditEntries)
	}
	if got := Duration(cfg.Sync.DebounceNormal, 0); got != DefaultDebounceNormal {
		t.Errorf("DebounceNormal = %v, want %v", got, DefaultDebounceNormal)
	}
	if got := Duration(cfg.History.AnalysisRange, 0); got != DefaultAnalysisRange {
		t.Errorf("AnalysisRange = %v, want %v", got, DefaultAnalysisRange)
	}
	if cfg.Encryption.Type != "age" {
		t.Errorf("Encryption.Type = %q, want age", cfg.Encryption.Type)
	}
}

func TestValidate(t *testing.T) {
	cfg := NewConfig("", "", "/tmp/x")
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for missing device_id")
	}

	cfg = NewConfig("d", "", "/tmp/x")
	cfg.Sync.DebounceHigh = "soon"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for malformed duration")
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Minute},
		{"bogus", time.Minute},
		{"-5s", time.Minute},
		{"3s", 3 * time.Second},
	}
	for _, tt := range tests {
		if got := Duration(tt.in, time.Minute); got != tt.want {
			t.Errorf("Duration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRemote(t *testing.T) {
	cfg := &Config{Remotes: []RemoteConfig{{Name: "a"}, {Name: "b"}}}

	r, err := cfg.Remote("")
	if err != nil || r.Name != "a" {
		t.Errorf("Remote(\"\") = %+v, %v; want first remote", r, err)
	}
	r, err = cfg.Remote("b")
	if err != nil || r.Name != "b" {
		t.Errorf("Remote(\"b\") = %+v, %v", r, err)
	}
	if _, err := cfg.Remote("missing"); err == nil {
		t.Error("Remote(\"missing\") expected error")
	}
	if _, err := (&Config{}).Remote(""); err == nil {
		t.Error("Remote() with no remotes expected error")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "budgetsync.toml")

		if err := Init(path, NewConfig("d1", "", dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "budgetsync.toml")
		cfg := NewConfig("d1", "", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestSaveAndReadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "budgetsync.toml")
	cfg := NewConfig("read-test", "", dir)
	cfg.Database = DatabaseConfig{Type: "memory"}

	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	cfg.ShareCode = "abandon ability able about"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if got.DeviceID != "read-test" {
		t.Errorf("DeviceID = %q, want %q", got.DeviceID, "read-test")
	}
	if got.ShareCode != "abandon ability able about" {
		t.Errorf("ShareCode = %q, want saved value", got.ShareCode)
	}

	if _, err := ReadFromFile("/nonexistent/path/budgetsync.toml"); err == nil {
		t.Fatal("ReadFromFile() expected error for missing file")
	}
}

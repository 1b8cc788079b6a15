package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"budgetsync/internal/budget"
	"budgetsync/internal/cloudsync"
	"budgetsync/internal/config"
	"budgetsync/internal/history"
	"budgetsync/internal/model"
)

const (
	testShareCode = "abandon ability able about"
	testPassword  = "correct horse battery"
)

func newTestConfig(t *testing.T, deviceID, remoteRoot string) *config.Config {
	t.Helper()
	cfg := config.NewConfig(deviceID, "Sam", t.TempDir())
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	cfg.ShareCode = testShareCode
	cfg.Remotes = []config.RemoteConfig{{Type: "filesystem", Name: "shared", FSRoot: remoteRoot}}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := NewApp(cfg, "Test", false)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewApp(t *testing.T) {
	cfg := newTestConfig(t, "device-1", t.TempDir())
	a, err := NewApp(cfg, "BackupCreate", false)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	if id := a.Backups().CreateManualBackup(context.Background()); id == "" {
		t.Error("CreateManualBackup() returned empty id")
	}
	if a.Fingerprint() == "" {
		t.Error("Fingerprint() is empty")
	}
	if _, err := a.Sync(); err == nil {
		t.Error("Sync() before Unlock expected error")
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, "budgetsync.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), a.Operation().ID) {
		t.Errorf("log file does not mention operation %s", a.Operation().ID)
	}
	if !strings.Contains(string(data), "operation finished") {
		t.Error("log file missing operation summary")
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := newTestConfig(t, "", t.TempDir())
	if _, err := NewApp(cfg, "Test", false); err == nil {
		t.Fatal("NewApp() expected error for missing device id")
	}

	cfg = newTestConfig(t, "device-1", t.TempDir())
	cfg.Database.Type = "postgres"
	if _, err := NewApp(cfg, "Test", false); err == nil {
		t.Fatal("NewApp() expected error for unknown database type")
	}
}

func TestUnlock_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no share code", func(t *testing.T) {
		cfg := newTestConfig(t, "device-1", t.TempDir())
		cfg.ShareCode = ""
		if _, err := newTestApp(t, cfg).Unlock(ctx, testPassword); err == nil {
			t.Error("Unlock() expected error without share code")
		}
	})

	t.Run("weak password", func(t *testing.T) {
		a := newTestApp(t, newTestConfig(t, "device-1", t.TempDir()))
		_, err := a.Unlock(ctx, "short")
		if !errors.Is(err, budget.ErrInvalidInput) {
			t.Errorf("Unlock() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("malformed share code", func(t *testing.T) {
		cfg := newTestConfig(t, "device-1", t.TempDir())
		cfg.ShareCode = "not a real code"
		_, err := newTestApp(t, cfg).Unlock(ctx, testPassword)
		if !errors.Is(err, budget.ErrInvalidFormat) {
			t.Errorf("Unlock() error = %v, want ErrInvalidFormat", err)
		}
	})

	t.Run("unknown remote", func(t *testing.T) {
		cfg := newTestConfig(t, "device-1", t.TempDir())
		cfg.Sync.Remote = "elsewhere"
		if _, err := newTestApp(t, cfg).Unlock(ctx, testPassword); err == nil {
			t.Error("Unlock() expected error for unknown remote")
		}
	})
}

func TestSync_BetweenTwoDevices(t *testing.T) {
	ctx := context.Background()
	shared := t.TempDir()

	laptop := newTestApp(t, newTestConfig(t, "laptop", shared))
	if err := laptop.Store().BulkAddEnvelopes(ctx, []model.Envelope{
		{ID: "env-1", Name: "Groceries", CurrentBalance: decimal.RequireFromString("120.00")},
	}); err != nil {
		t.Fatalf("BulkAddEnvelopes() error = %v", err)
	}
	if err := laptop.Store().PutMetadata(ctx, &model.Metadata{LastModified: 1705314600000}); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}

	laptopID, err := laptop.Unlock(ctx, testPassword)
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := laptop.ValidateRemote(ctx); err != nil {
		t.Fatalf("ValidateRemote() error = %v", err)
	}
	o, _ := laptop.Sync()
	res, err := o.ForceSync(ctx)
	if err != nil {
		t.Fatalf("laptop ForceSync() error = %v", err)
	}
	if res.Direction != cloudsync.DirectionUpload {
		t.Errorf("laptop direction = %s, want upload", res.Direction)
	}

	phoneCfg := newTestConfig(t, "phone", shared)
	phoneCfg.Sync.SharedBudget = true
	phone := newTestApp(t, phoneCfg)
	phoneID, err := phone.Unlock(ctx, testPassword)
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if phoneID.BudgetID != laptopID.BudgetID {
		t.Fatalf("budget ids differ: %s vs %s", phoneID.BudgetID, laptopID.BudgetID)
	}

	o, _ = phone.Sync()
	res, err = o.ForceSync(ctx)
	if err != nil {
		t.Fatalf("phone ForceSync() error = %v", err)
	}
	if res.Direction != cloudsync.DirectionDownload || res.Records != 1 {
		t.Errorf("phone result = %+v, want download of 1 record", res)
	}

	envs, err := phone.Store().ListEnvelopes(ctx)
	if err != nil {
		t.Fatalf("ListEnvelopes() error = %v", err)
	}
	if len(envs) != 1 || envs[0].Name != "Groceries" {
		t.Errorf("phone envelopes = %+v", envs)
	}

	entries := laptop.Audit().Recent(ctx, 0)
	var sawValidate bool
	for _, e := range entries {
		if e.Endpoint == "remote/validate" {
			sawValidate = true
		}
	}
	if !sawValidate {
		t.Error("remote validation was not audited")
	}
}

func TestDatabaseTools(t *testing.T) {
	ctx := context.Background()

	t.Run("memory database is rejected", func(t *testing.T) {
		a := newTestApp(t, newTestConfig(t, "device-1", t.TempDir()))
		if _, err := a.Schema(ctx); err == nil {
			t.Error("Schema() expected error for memory database")
		}
		if err := a.SnapshotDatabase(ctx, filepath.Join(t.TempDir(), "x.db")); err == nil {
			t.Error("SnapshotDatabase() expected error for memory database")
		}
	})

	t.Run("sqlite database", func(t *testing.T) {
		cfg := newTestConfig(t, "device-1", t.TempDir())
		cfg.Database = config.DatabaseConfig{Type: "sqlite", DataDir: t.TempDir()}
		a := newTestApp(t, cfg)

		schema, err := a.Schema(ctx)
		if err != nil {
			t.Fatalf("Schema() error = %v", err)
		}
		if !strings.Contains(schema, "CREATE TABLE audit_log") {
			t.Errorf("Schema() missing audit_log table")
		}

		st, err := a.MigrationStatus()
		if err != nil {
			t.Fatalf("MigrationStatus() error = %v", err)
		}
		if st.Dirty || st.Current != st.Latest {
			t.Errorf("MigrationStatus() = %+v", st)
		}

		dest := filepath.Join(t.TempDir(), "snapshot.db")
		if err := a.SnapshotDatabase(ctx, dest); err != nil {
			t.Fatalf("SnapshotDatabase() error = %v", err)
		}
		if _, err := os.Stat(dest); err != nil {
			t.Errorf("snapshot not written: %v", err)
		}
	})
}

func TestSetUnassignedCash(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t, "device-1", t.TempDir()))

	if err := a.SetUnassignedCash(ctx, decimal.RequireFromString("250.50")); err != nil {
		t.Fatalf("SetUnassignedCash() error = %v", err)
	}
	if err := a.SetUnassignedCash(ctx, decimal.RequireFromString("100")); err != nil {
		t.Fatalf("SetUnassignedCash() error = %v", err)
	}

	m, err := a.Store().GetMetadata(ctx)
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if !m.UnassignedCash.Equal(decimal.NewFromInt(100)) {
		t.Errorf("UnassignedCash = %s, want 100", m.UnassignedCash)
	}
	if m.LastModified == 0 {
		t.Error("LastModified not stamped")
	}

	changes := a.History().GetRecentChanges(ctx, history.EntityUnassignedCash, 10)
	if len(changes) != 2 {
		t.Fatalf("got %d unassigned cash changes, want 2", len(changes))
	}
	var found bool
	for _, c := range changes {
		found = found || c.Description == "Updated unassigned cash from $250.50 to $100.00"
	}
	if !found {
		t.Errorf("changes = %+v, missing the second update", changes)
	}
}

func TestSetActualBalance(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t, "device-1", t.TempDir()))

	if err := a.SetActualBalance(ctx, decimal.RequireFromString("1200"), true); err != nil {
		t.Fatalf("SetActualBalance() error = %v", err)
	}

	m, _ := a.Store().GetMetadata(ctx)
	if m == nil || !m.IsActualBalanceManual || !m.ActualBalance.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("metadata = %+v", m)
	}
	if got := a.History().GetRecentChanges(ctx, history.EntityActualBalance, 10); len(got) != 1 {
		t.Errorf("got %d actual balance changes, want 1", len(got))
	}
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"budgetsync/internal/audit"
	"budgetsync/internal/backup"
	"budgetsync/internal/budget"
	"budgetsync/internal/cloudsync"
	"budgetsync/internal/config"
	"budgetsync/internal/database"
	"budgetsync/internal/database/migrations"
	"budgetsync/internal/device"
	"budgetsync/internal/encryption"
	"budgetsync/internal/history"
	"budgetsync/internal/model"
	"budgetsync/internal/remote"
	"budgetsync/internal/sharecode"
)

// App is the application layer between the CLI and the services.
// It constructs all dependencies from config and manages the store
// lifecycle on Close. Sync needs the budget identity, so it is wired only
// after Unlock.
type App struct {
	cfg     *config.Config
	store   budget.Store
	clock   budget.Clock
	fp      *device.Fingerprinter
	logger  budget.Logger
	logFile *os.File
	op      *Operation

	history *history.Service
	backups *backup.Service
	audit   *audit.Log

	identity *sharecode.Identity
	remote   budget.Remote
	sync     *cloudsync.Orchestrator
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Sync", "BackupRestore").
// verbose also echoes debug records to stderr.
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string, verbose bool) (*App, error) {
	cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.LogDir == "" {
		return nil, fmt.Errorf("log_dir is not configured")
	}

	clock := budget.RealClock{}
	op := NewOperation(operation, "", clock.Now())

	consoleLevel := slog.LevelWarn
	if verbose {
		consoleLevel = slog.LevelDebug
	}
	l, logFile, err := newLogger(cfg.LogDir, op.ID, consoleLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	store, err := database.NewStoreFromConfig(cfg.Database, cfg.DeviceID)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	fp := device.NewFingerprinter(cfg.DeviceID)
	limits := history.Limits{
		MaxRecentCommits:    cfg.History.MaxRecentCommits,
		MaxDevicesPerAuthor: cfg.History.MaxDevicesPerAuthor,
		DeviceLookback:      cfg.History.DeviceLookback,
		AnalysisRange:       config.Duration(cfg.History.AnalysisRange, config.DefaultAnalysisRange),
	}

	return &App{
		cfg:     cfg,
		store:   store,
		clock:   clock,
		fp:      fp,
		logger:  logger,
		logFile: logFile,
		op:      op,
		history: history.NewService(store, clock, fp, logger, limits),
		backups: backup.NewService(store, clock, logger, backup.Options{
			MaxBackups: cfg.Backup.MaxBackups,
			Disabled:   cfg.Backup.Disabled,
		}),
		audit: audit.NewLog(store, clock, budget.UUIDGenerator{}, logger, cfg.Audit.MaxEntries),
	}, nil
}

func (a *App) Config() *config.Config        { return a.cfg }
func (a *App) Store() budget.Store           { return a.store }
func (a *App) History() *history.Service     { return a.history }
func (a *App) Backups() *backup.Service      { return a.backups }
func (a *App) Audit() *audit.Log             { return a.audit }
func (a *App) Operation() *Operation         { return a.op }
func (a *App) Fingerprint() string           { return a.fp.Fingerprint() }
func (a *App) Identity() *sharecode.Identity { return a.identity }

// Unlock derives the budget identity from password and the configured share
// code, then wires encryption, the remote and the sync orchestrator.
func (a *App) Unlock(ctx context.Context, password string) (*sharecode.Identity, error) {
	if a.cfg.ShareCode == "" {
		return nil, fmt.Errorf("no share code configured: run 'budgetsync sharecode generate --save' first")
	}
	if err := sharecode.CheckPassword(password); err != nil {
		return nil, err
	}
	id, err := sharecode.DeriveIdentity(password, a.cfg.ShareCode)
	if err != nil {
		return nil, fmt.Errorf("deriving identity: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption, id.KeyMaterial)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	rc, err := a.cfg.Remote(a.cfg.Sync.Remote)
	if err != nil {
		return nil, err
	}
	r, err := remote.NewRemoteFromConfig(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("creating remote: %w", err)
	}

	o, err := cloudsync.New(a.store, r, enc, a.backups, a.history, a.audit, a.clock, a.logger, cloudsync.Options{
		BudgetID:       id.BudgetID,
		Author:         a.cfg.Author,
		SharedBudget:   a.cfg.Sync.SharedBudget,
		DebounceNormal: config.Duration(a.cfg.Sync.DebounceNormal, config.DefaultDebounceNormal),
		DebounceHigh:   config.Duration(a.cfg.Sync.DebounceHigh, config.DefaultDebounceHigh),
	})
	if err != nil {
		return nil, fmt.Errorf("creating sync orchestrator: %w", err)
	}

	a.identity, a.remote, a.sync = id, r, o
	a.logger.Info("budget unlocked", "budgetId", id.BudgetID, "remote", rc.Name)
	return id, nil
}

// Sync returns the orchestrator wired by Unlock.
func (a *App) Sync() (*cloudsync.Orchestrator, error) {
	if a.sync == nil {
		return nil, fmt.Errorf("budget is locked: unlock with the budget password first")
	}
	return a.sync, nil
}

// ValidateRemote checks that the configured remote is reachable. The call is
// audited like any other remote call.
func (a *App) ValidateRemote(ctx context.Context) error {
	if a.remote == nil {
		return fmt.Errorf("budget is locked: unlock with the budget password first")
	}
	return a.audit.Time(ctx, "remote/validate", "HEAD", nil, func() error {
		return a.remote.ValidateSetup(ctx)
	})
}

// updateMetadata applies fn to the stored metadata, creating it if absent,
// and stamps LastModified.
func (a *App) updateMetadata(ctx context.Context, fn func(m *model.Metadata)) error {
	return a.store.Update(ctx, func(tx budget.Store) error {
		m, err := tx.GetMetadata(ctx)
		if err != nil {
			return err
		}
		if m == nil {
			m = &model.Metadata{}
		}
		fn(m)
		m.LastModified = a.clock.Now().UnixMilli()
		return tx.PutMetadata(ctx, m)
	})
}

// SetUnassignedCash stores a new unassigned cash amount, records the change
// in history and, when sync is running, pushes it right away.
func (a *App) SetUnassignedCash(ctx context.Context, amount decimal.Decimal) error {
	var previous decimal.Decimal
	if err := a.updateMetadata(ctx, func(m *model.Metadata) {
		previous = m.UnassignedCash
		m.UnassignedCash = amount
	}); err != nil {
		return fmt.Errorf("updating unassigned cash: %w", err)
	}

	if _, err := a.history.TrackUnassignedCashChange(ctx, history.UnassignedCashChange{
		Previous: previous,
		New:      amount,
		Author:   a.cfg.Author,
	}); err != nil {
		a.logger.Warn("failed to record unassigned cash change", "error", err)
	}
	if a.sync != nil {
		a.sync.TriggerCriticalSync("unassigned cash changed")
	}
	return nil
}

// SetActualBalance stores the reconciled bank balance. manual marks a value
// typed in by the user rather than calculated.
func (a *App) SetActualBalance(ctx context.Context, amount decimal.Decimal, manual bool) error {
	var previous decimal.Decimal
	if err := a.updateMetadata(ctx, func(m *model.Metadata) {
		previous = m.ActualBalance
		m.ActualBalance = amount
		m.IsActualBalanceManual = manual
	}); err != nil {
		return fmt.Errorf("updating actual balance: %w", err)
	}

	if _, err := a.history.TrackActualBalanceChange(ctx, history.ActualBalanceChange{
		Previous: previous,
		New:      amount,
		IsManual: manual,
		Author:   a.cfg.Author,
	}); err != nil {
		a.logger.Warn("failed to record actual balance change", "error", err)
	}
	if a.sync != nil {
		a.sync.TriggerCriticalSync("actual balance changed")
	}
	return nil
}

// sqliteStore returns the store as a SQLite store, or an error naming what
// needed it.
func (a *App) sqliteStore(what string) (*database.SQLiteStore, error) {
	s, ok := a.store.(*database.SQLiteStore)
	if !ok {
		return nil, fmt.Errorf("%s requires a sqlite database, configured type is %q", what, a.cfg.Database.Type)
	}
	return s, nil
}

// SnapshotDatabase writes a consistent copy of the local database to dest.
func (a *App) SnapshotDatabase(ctx context.Context, dest string) error {
	s, err := a.sqliteStore("database snapshot")
	if err != nil {
		return err
	}
	if err := s.BackupTo(ctx, dest); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}
	a.logger.Info("database snapshot written", "dest", dest)
	return nil
}

// Schema returns the local database schema as SQL.
func (a *App) Schema(ctx context.Context) (string, error) {
	s, err := a.sqliteStore("schema dump")
	if err != nil {
		return "", err
	}
	return s.Schema(ctx)
}

// MigrationStatus reports the local database migration state.
func (a *App) MigrationStatus() (*migrations.Status, error) {
	s, err := a.sqliteStore("migration status")
	if err != nil {
		return nil, err
	}
	return s.MigrationStatus()
}

// Close stops background sync, records how the operation ended and closes
// all resources.
func (a *App) Close() error {
	var firstErr error

	if a.sync != nil {
		a.sync.Stop()
	}

	a.logger.Info("operation finished",
		"operation", a.op.Name, "status", a.op.Status, "elapsed", time.Since(a.op.Started).Round(time.Millisecond))

	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

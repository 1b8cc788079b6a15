// Package backup snapshots local budget state before risky operations and
// restores it on demand.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetsync/internal/budget"
	"budgetsync/internal/model"
)

const (
	// DefaultMaxBackups is the retention bound when none is configured.
	DefaultMaxBackups = 5

	idPrefix    = "auto_backup_"
	dataVersion = "2.0"
)

// Options configures a Service.
type Options struct {
	MaxBackups int
	Disabled   bool
}

// Service owns the rolling window of local snapshots.
type Service struct {
	store      budget.Store
	clock      budget.Clock
	logger     budget.Logger
	maxBackups int
	enabled    atomic.Bool

	// guards the id sequence for backups created in the same millisecond
	idMu   sync.Mutex
	lastID string
	idSeq  int
}

// NewService creates a backup service over store.
func NewService(store budget.Store, clock budget.Clock, logger budget.Logger, opts Options) *Service {
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = DefaultMaxBackups
	}
	s := &Service{
		store:      store,
		clock:      clock,
		logger:     logger,
		maxBackups: opts.MaxBackups,
	}
	s.enabled.Store(!opts.Disabled)
	return s
}

// SetEnabled turns automatic backups on or off.
func (s *Service) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
	s.logger.Debug("auto backup toggled", "enabled", enabled)
}

// Enabled reports whether automatic backups are on.
func (s *Service) Enabled() bool { return s.enabled.Load() }

// CreatePreSyncBackup snapshots local state ahead of a sync and prunes old
// backups. Returns the backup id, or "" when disabled or on any failure.
// It never fails the caller.
func (s *Service) CreatePreSyncBackup(ctx context.Context, syncType string) string {
	if !s.Enabled() {
		s.logger.Debug("auto backup disabled, skipping")
		return ""
	}
	if syncType == "" {
		syncType = "unknown"
	}
	return s.create(ctx, model.BackupSyncTriggered, syncType)
}

// CreateManualBackup snapshots local state on request, regardless of the
// enabled flag. Returns "" on failure.
func (s *Service) CreateManualBackup(ctx context.Context) string {
	return s.create(ctx, model.BackupManual, "")
}

func (s *Service) create(ctx context.Context, typ model.BackupType, syncType string) string {
	label := syncType
	if label == "" {
		label = string(typ)
	}
	id := s.nextID(label)

	s.logger.Debug("creating backup", "backupId", id, "type", string(typ))

	start := s.clock.Now()
	data, err := s.CollectAllData(ctx)
	if err != nil {
		s.logger.Error("failed to create backup", "backupId", id, "error", err)
		return ""
	}
	duration := s.clock.Now().Sub(start)

	encoded, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to create backup", "backupId", id, "error", err)
		return ""
	}

	b := &model.AutoBackup{
		ID:        id,
		Type:      typ,
		SyncType:  syncType,
		Timestamp: budget.Millis(s.clock.Now()),
		Data:      *data,
		Metadata: model.BackupMetadata{
			TotalRecords: CountRecords(data),
			SizeEstimate: int64(len(encoded)),
			DurationMs:   duration.Milliseconds(),
			Version:      dataVersion,
		},
	}
	if err := s.store.PutBackup(ctx, b); err != nil {
		s.logger.Error("failed to store backup", "backupId", id, "error", err)
		return ""
	}

	s.CleanupOldBackups(ctx)

	s.logger.Info("backup created",
		"backupId", id, "records", b.Metadata.TotalRecords, "size", FormatSize(b.Metadata.SizeEstimate), "durationMs", b.Metadata.DurationMs)
	return id
}

// nextID returns auto_backup_<label>_<millis>, adding a _<n> suffix when a
// backup with the same label was already created in that millisecond.
func (s *Service) nextID(label string) string {
	base := fmt.Sprintf("%s%s_%d", idPrefix, label, budget.Millis(s.clock.Now()))

	s.idMu.Lock()
	defer s.idMu.Unlock()
	if base != s.lastID {
		s.lastID, s.idSeq = base, 0
		return base
	}
	s.idSeq++
	return base + "_" + strconv.Itoa(s.idSeq)
}

// CollectAllData reads every entity collection, the audit log and the
// metadata record concurrently. The collections are not read in one
// transaction, so the view is only as consistent as concurrent writers allow.
func (s *Service) CollectAllData(ctx context.Context) (*model.BackupData, error) {
	data := &model.BackupData{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		data.Envelopes, err = s.store.ListEnvelopes(gctx)
		return err
	})
	g.Go(func() (err error) {
		data.Transactions, err = s.store.ListTransactions(gctx)
		return err
	})
	g.Go(func() (err error) {
		data.Bills, err = s.store.ListBills(gctx)
		return err
	})
	g.Go(func() (err error) {
		data.Debts, err = s.store.ListDebts(gctx)
		return err
	})
	g.Go(func() (err error) {
		data.AuditLog, err = s.store.ListAuditEntries(gctx, 0)
		return err
	})
	g.Go(func() (err error) {
		data.Metadata, err = s.store.GetMetadata(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collecting backup data: %w", err)
	}
	data.Timestamp = budget.Millis(s.clock.Now())
	return data, nil
}

// CleanupOldBackups deletes every backup beyond the newest MaxBackups.
// Failures are logged. Returns the number deleted.
func (s *Service) CleanupOldBackups(ctx context.Context) int {
	backups, err := s.store.ListBackups(ctx)
	if err != nil {
		s.logger.Error("failed to clean up old backups", "error", err)
		return 0
	}
	if len(backups) <= s.maxBackups {
		return 0
	}

	var ids []string
	for _, b := range backups[s.maxBackups:] {
		ids = append(ids, b.ID)
	}
	if err := s.store.DeleteBackups(ctx, ids); err != nil {
		s.logger.Error("failed to clean up old backups", "error", err)
		return 0
	}

	s.logger.Debug("cleaned up old backups", "deleted", len(ids), "remaining", s.maxBackups)
	return len(ids)
}

// GetBackups returns every backup, newest first, or an empty slice on failure.
func (s *Service) GetBackups(ctx context.Context) []model.AutoBackup {
	backups, err := s.store.ListBackups(ctx)
	if err != nil {
		s.logger.Error("failed to retrieve backups", "error", err)
		return []model.AutoBackup{}
	}
	return backups
}

// Stats summarizes the stored backups.
type Stats struct {
	Count      int        `json:"count" yaml:"count"`
	TotalBytes int64      `json:"totalBytes" yaml:"totalBytes"`
	TotalSize  string     `json:"totalSize" yaml:"totalSize"`
	Oldest     *time.Time `json:"oldest" yaml:"oldest"`
	Newest     *time.Time `json:"newest" yaml:"newest"`
}

// GetBackupStats returns counts and sizes. On failure it returns empty stats.
func (s *Service) GetBackupStats(ctx context.Context) Stats {
	backups := s.GetBackups(ctx)

	st := Stats{Count: len(backups)}
	for _, b := range backups {
		st.TotalBytes += b.Metadata.SizeEstimate
	}
	st.TotalSize = FormatSize(st.TotalBytes)
	if len(backups) > 0 {
		newest := time.UnixMilli(backups[0].Timestamp).UTC()
		oldest := time.UnixMilli(backups[len(backups)-1].Timestamp).UTC()
		st.Newest, st.Oldest = &newest, &oldest
	}
	return st
}

// DeleteBackup removes one backup. Returns false on failure.
func (s *Service) DeleteBackup(ctx context.Context, id string) bool {
	if err := s.store.DeleteBackups(ctx, []string{id}); err != nil {
		s.logger.Error("failed to delete backup", "backupId", id, "error", err)
		return false
	}
	s.logger.Debug("deleted backup", "backupId", id)
	return true
}

// DeleteAllBackups removes every backup. Returns false on failure.
func (s *Service) DeleteAllBackups(ctx context.Context) bool {
	if err := s.store.DeleteAllBackups(ctx); err != nil {
		s.logger.Error("failed to delete all backups", "error", err)
		return false
	}
	s.logger.Debug("all backups deleted")
	return true
}

// CountRecords is the number of entity records in data. Audit entries and
// metadata are not counted.
func CountRecords(data *model.BackupData) int {
	if data == nil {
		return 0
	}
	return len(data.Envelopes) + len(data.Transactions) + len(data.Bills) + len(data.Debts)
}

// FormatSize renders a byte count with binary units and up to two decimals:
// "0 B", "512 B", "1.5 KB", "2.25 MB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	v, i := float64(bytes), 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + units[i]
}

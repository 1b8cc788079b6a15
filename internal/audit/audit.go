// Package audit keeps a capped ledger of calls made to the remote store.
package audit

import (
	"context"
	"time"

	"budgetsync/internal/budget"
	"budgetsync/internal/model"
)

// DefaultMaxEntries bounds the ledger when no limit is configured.
const DefaultMaxEntries = 1000

// Entry describes one remote call. The ledger assigns the id and timestamp.
type Entry struct {
	Endpoint     string
	Method       string
	PayloadSize  int64
	ResponseTime time.Duration
	Success      bool
	Encrypted    bool
	Err          error
}

// Log appends audit entries and evicts the oldest beyond MaxEntries.
type Log struct {
	store      budget.Store
	clock      budget.Clock
	ids        budget.IDGenerator
	logger     budget.Logger
	maxEntries int
}

func NewLog(store budget.Store, clock budget.Clock, ids budget.IDGenerator, logger budget.Logger, maxEntries int) *Log {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Log{store: store, clock: clock, ids: ids, logger: logger, maxEntries: maxEntries}
}

// Record appends e. Failures are logged, never returned: auditing must not
// break the call being audited.
func (l *Log) Record(ctx context.Context, e Entry) {
	entry := &model.AuditLogEntry{
		ID:                   l.ids.New(),
		Timestamp:            budget.Millis(l.clock.Now()),
		Endpoint:             e.Endpoint,
		Method:               e.Method,
		EncryptedPayloadSize: e.PayloadSize,
		ResponseTimeMs:       e.ResponseTime.Milliseconds(),
		Success:              e.Success,
		Encrypted:            e.Encrypted,
	}
	if e.Err != nil {
		entry.ErrorMessage = e.Err.Error()
	}

	if err := l.store.AddAuditEntry(ctx, entry); err != nil {
		l.logger.Warn("failed to record audit entry", "endpoint", e.Endpoint, "error", err)
		return
	}

	n, err := l.store.CountAuditEntries(ctx)
	if err != nil {
		l.logger.Warn("failed to count audit entries", "error", err)
		return
	}
	if excess := n - l.maxEntries; excess > 0 {
		if err := l.store.DeleteOldestAuditEntries(ctx, excess); err != nil {
			l.logger.Warn("failed to evict audit entries", "excess", excess, "error", err)
		}
	}
}

// Time runs fn and records its outcome against endpoint. size reports the
// payload size once fn has returned. fn's error is returned unchanged.
func (l *Log) Time(ctx context.Context, endpoint, method string, size func() int64, fn func() error) error {
	start := l.clock.Now()
	err := fn()
	e := Entry{
		Endpoint:     endpoint,
		Method:       method,
		ResponseTime: l.clock.Now().Sub(start),
		Success:      err == nil,
		Encrypted:    true,
		Err:          err,
	}
	if size != nil {
		e.PayloadSize = size()
	}
	l.Record(ctx, e)
	return err
}

// Recent returns up to limit entries, newest first, or nil on failure.
func (l *Log) Recent(ctx context.Context, limit int) []model.AuditLogEntry {
	entries, err := l.store.ListAuditEntries(ctx, limit)
	if err != nil {
		l.logger.Error("failed to list audit entries", "error", err)
		return nil
	}
	return entries
}

// Stats summarizes the ledger.
type Stats struct {
	Count             int     `json:"count" yaml:"count"`
	Failures          int     `json:"failures" yaml:"failures"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs" yaml:"avgResponseTimeMs"`
	TotalPayloadBytes int64   `json:"totalPayloadBytes" yaml:"totalPayloadBytes"`
}

// Stats summarizes every retained entry. Zero stats on failure.
func (l *Log) Stats(ctx context.Context) Stats {
	entries := l.Recent(ctx, 0)

	var st Stats
	var total int64
	for _, e := range entries {
		st.Count++
		if !e.Success {
			st.Failures++
		}
		total += e.ResponseTimeMs
		st.TotalPayloadBytes += e.EncryptedPayloadSize
	}
	if st.Count > 0 {
		st.AvgResponseTimeMs = float64(total) / float64(st.Count)
	}
	return st
}

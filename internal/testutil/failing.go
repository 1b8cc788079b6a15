package testutil

import (
	"context"
	"errors"
	"sync"

	"budgetsync/internal/budget"
	"budgetsync/internal/model"
)

// ErrInjected is returned by FailingStore for every failing operation.
var ErrInjected = errors.New("injected storage failure")

// FailingStore wraps a Store and fails selected operations. Operations are
// named after the Store method, e.g. "ListEnvelopes" or "InsertCommit".
// Methods not listed pass through to the wrapped Store.
type FailingStore struct {
	budget.Store

	mu   sync.Mutex
	fail map[string]bool
}

// NewFailingStore wraps inner, failing each named operation.
func NewFailingStore(inner budget.Store, ops ...string) *FailingStore {
	f := &FailingStore{Store: inner, fail: make(map[string]bool)}
	f.FailOn(ops...)
	return f
}

// FailOn adds operations to the failing set.
func (f *FailingStore) FailOn(ops ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range ops {
		f.fail[op] = true
	}
}

// Heal clears the failing set.
func (f *FailingStore) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.fail)
}

func (f *FailingStore) err(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[op] {
		return &budget.StorageError{Op: op, Err: ErrInjected}
	}
	return nil
}

func (f *FailingStore) Update(ctx context.Context, fn func(tx budget.Store) error) error {
	if err := f.err("Update"); err != nil {
		return err
	}
	return f.Store.Update(ctx, func(tx budget.Store) error {
		return fn(&FailingStore{Store: tx, fail: f.snapshot()})
	})
}

func (f *FailingStore) snapshot() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(f.fail))
	for k, v := range f.fail {
		out[k] = v
	}
	return out
}

func (f *FailingStore) ListEnvelopes(ctx context.Context) ([]model.Envelope, error) {
	if err := f.err("ListEnvelopes"); err != nil {
		return nil, err
	}
	return f.Store.ListEnvelopes(ctx)
}

func (f *FailingStore) ListTransactions(ctx context.Context) ([]model.Transaction, error) {
	if err := f.err("ListTransactions"); err != nil {
		return nil, err
	}
	return f.Store.ListTransactions(ctx)
}

func (f *FailingStore) BulkAddEnvelopes(ctx context.Context, envelopes []model.Envelope) error {
	if err := f.err("BulkAddEnvelopes"); err != nil {
		return err
	}
	return f.Store.BulkAddEnvelopes(ctx, envelopes)
}

func (f *FailingStore) BulkAddTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := f.err("BulkAddTransactions"); err != nil {
		return err
	}
	return f.Store.BulkAddTransactions(ctx, transactions)
}

func (f *FailingStore) ClearEntities(ctx context.Context) error {
	if err := f.err("ClearEntities"); err != nil {
		return err
	}
	return f.Store.ClearEntities(ctx)
}

func (f *FailingStore) GetMetadata(ctx context.Context) (*model.Metadata, error) {
	if err := f.err("GetMetadata"); err != nil {
		return nil, err
	}
	return f.Store.GetMetadata(ctx)
}

func (f *FailingStore) PutMetadata(ctx context.Context, m *model.Metadata) error {
	if err := f.err("PutMetadata"); err != nil {
		return err
	}
	return f.Store.PutMetadata(ctx, m)
}

func (f *FailingStore) InsertCommit(ctx context.Context, commit *model.Commit, changes []model.Change) (bool, error) {
	if err := f.err("InsertCommit"); err != nil {
		return false, err
	}
	return f.Store.InsertCommit(ctx, commit, changes)
}

func (f *FailingStore) ListCommitsByAuthor(ctx context.Context, author string, limit int) ([]model.Commit, error) {
	if err := f.err("ListCommitsByAuthor"); err != nil {
		return nil, err
	}
	return f.Store.ListCommitsByAuthor(ctx, author, limit)
}

func (f *FailingStore) ListCommitsSince(ctx context.Context, since int64) ([]model.Commit, error) {
	if err := f.err("ListCommitsSince"); err != nil {
		return nil, err
	}
	return f.Store.ListCommitsSince(ctx, since)
}

func (f *FailingStore) CountCommits(ctx context.Context) (int, error) {
	if err := f.err("CountCommits"); err != nil {
		return 0, err
	}
	return f.Store.CountCommits(ctx)
}

func (f *FailingStore) DeleteCommits(ctx context.Context, hashes []string) error {
	if err := f.err("DeleteCommits"); err != nil {
		return err
	}
	return f.Store.DeleteCommits(ctx, hashes)
}

func (f *FailingStore) ListChanges(ctx context.Context, q budget.ChangeQuery) ([]model.Change, error) {
	if err := f.err("ListChanges"); err != nil {
		return nil, err
	}
	return f.Store.ListChanges(ctx, q)
}

func (f *FailingStore) ListBranches(ctx context.Context) ([]model.Branch, error) {
	if err := f.err("ListBranches"); err != nil {
		return nil, err
	}
	return f.Store.ListBranches(ctx)
}

func (f *FailingStore) ListTags(ctx context.Context) ([]model.Tag, error) {
	if err := f.err("ListTags"); err != nil {
		return nil, err
	}
	return f.Store.ListTags(ctx)
}

func (f *FailingStore) PutBackup(ctx context.Context, b *model.AutoBackup) error {
	if err := f.err("PutBackup"); err != nil {
		return err
	}
	return f.Store.PutBackup(ctx, b)
}

func (f *FailingStore) ListBackups(ctx context.Context) ([]model.AutoBackup, error) {
	if err := f.err("ListBackups"); err != nil {
		return nil, err
	}
	return f.Store.ListBackups(ctx)
}

func (f *FailingStore) AddAuditEntry(ctx context.Context, e *model.AuditLogEntry) error {
	if err := f.err("AddAuditEntry"); err != nil {
		return err
	}
	return f.Store.AddAuditEntry(ctx, e)
}

func (f *FailingStore) ListAuditEntries(ctx context.Context, limit int) ([]model.AuditLogEntry, error) {
	if err := f.err("ListAuditEntries"); err != nil {
		return nil, err
	}
	return f.Store.ListAuditEntries(ctx, limit)
}

func (f *FailingStore) GetBackup(ctx context.Context, id string) (*model.AutoBackup, error) {
	if err := f.err("GetBackup"); err != nil {
		return nil, err
	}
	return f.Store.GetBackup(ctx, id)
}

func (f *FailingStore) DeleteBackups(ctx context.Context, ids []string) error {
	if err := f.err("DeleteBackups"); err != nil {
		return err
	}
	return f.Store.DeleteBackups(ctx, ids)
}

func (f *FailingStore) DeleteAllBackups(ctx context.Context) error {
	if err := f.err("DeleteAllBackups"); err != nil {
		return err
	}
	return f.Store.DeleteAllBackups(ctx)
}

func (f *FailingStore) CountAuditEntries(ctx context.Context) (int, error) {
	if err := f.err("CountAuditEntries"); err != nil {
		return 0, err
	}
	return f.Store.CountAuditEntries(ctx)
}

func (f *FailingStore) DeleteOldestAuditEntries(ctx context.Context, n int) error {
	if err := f.err("DeleteOldestAuditEntries"); err != nil {
		return err
	}
	return f.Store.DeleteOldestAuditEntries(ctx, n)
}

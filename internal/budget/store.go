package budget

import (
	"context"

	"budgetsync/internal/model"
)

// EntityStore holds the budget's working collections and the metadata record.
type EntityStore interface {
	ListEnvelopes(ctx context.Context) ([]model.Envelope, error)
	ListTransactions(ctx context.Context) ([]model.Transaction, error)
	ListBills(ctx context.Context) ([]model.Bill, error)
	ListDebts(ctx context.Context) ([]model.Debt, error)

	BulkAddEnvelopes(ctx context.Context, envelopes []model.Envelope) error
	BulkAddTransactions(ctx context.Context, transactions []model.Transaction) error
	BulkAddBills(ctx context.Context, bills []model.Bill) error
	BulkAddDebts(ctx context.Context, debts []model.Debt) error

	// ClearEntities empties the envelope, transaction, bill and debt collections.
	ClearEntities(ctx context.Context) error

	// GetMetadata returns the singleton metadata record, or nil if none exists.
	GetMetadata(ctx context.Context) (*model.Metadata, error)
	PutMetadata(ctx context.Context, metadata *model.Metadata) error
}

// ChangeQuery selects changes. Zero values mean "no filter"; Limit <= 0 means no limit.
type ChangeQuery struct {
	EntityTypes []string
	EntityID    string
	Limit       int
}

// HistoryStore holds the commit ledger, branches and tags.
type HistoryStore interface {
	// InsertCommit stores a commit and its changes. Returns false without
	// writing anything if a commit with the same hash already exists.
	InsertCommit(ctx context.Context, commit *model.Commit, changes []model.Change) (bool, error)

	// GetCommit returns the commit with the given hash, or nil if none exists.
	GetCommit(ctx context.Context, hash string) (*model.Commit, error)

	// ListCommitsByAuthor returns up to limit commits by author, newest first.
	ListCommitsByAuthor(ctx context.Context, author string, limit int) ([]model.Commit, error)

	// ListCommitsSince returns every commit with timestamp strictly after since.
	ListCommitsSince(ctx context.Context, since int64) ([]model.Commit, error)

	// ListOldestCommits returns up to limit commits, oldest first.
	ListOldestCommits(ctx context.Context, limit int) ([]model.Commit, error)

	CountCommits(ctx context.Context) (int, error)

	// DeleteCommits removes the commits and every change that references them.
	DeleteCommits(ctx context.Context, hashes []string) error

	// ListChanges returns matching changes, newest first.
	ListChanges(ctx context.Context, q ChangeQuery) ([]model.Change, error)

	// ListChangesForCommits returns every change owned by the given commits.
	ListChangesForCommits(ctx context.Context, hashes []string) ([]model.Change, error)

	// GetBranch returns the named branch, or nil if none exists.
	GetBranch(ctx context.Context, name string) (*model.Branch, error)
	InsertBranch(ctx context.Context, branch *model.Branch) error

	// ListBranches returns every branch, oldest first.
	ListBranches(ctx context.Context) ([]model.Branch, error)

	// DeactivateBranches clears the active flag on every branch.
	DeactivateBranches(ctx context.Context) error

	// ActivateBranch sets the active flag on the named branch.
	// Returns false if no such branch exists.
	ActivateBranch(ctx context.Context, name string) (bool, error)

	// AdvanceActiveBranch moves the active branch head to hash. No-op if no branch is active.
	AdvanceActiveBranch(ctx context.Context, hash string) error

	// GetTag returns the named tag, or nil if none exists.
	GetTag(ctx context.Context, name string) (*model.Tag, error)
	InsertTag(ctx context.Context, tag *model.Tag) error

	// ListTags returns every tag, newest first.
	ListTags(ctx context.Context) ([]model.Tag, error)
}

// BackupStore holds automatic and manual snapshots.
type BackupStore interface {
	PutBackup(ctx context.Context, backup *model.AutoBackup) error

	// GetBackup returns the backup with the given id, or nil if none exists.
	GetBackup(ctx context.Context, id string) (*model.AutoBackup, error)

	// ListBackups returns every backup, newest first.
	ListBackups(ctx context.Context) ([]model.AutoBackup, error)

	DeleteBackups(ctx context.Context, ids []string) error
	DeleteAllBackups(ctx context.Context) error
}

// AuditStore holds the API audit trail.
type AuditStore interface {
	AddAuditEntry(ctx context.Context, entry *model.AuditLogEntry) error
	CountAuditEntries(ctx context.Context) (int, error)

	// ListAuditEntries returns up to limit entries, newest first. limit <= 0 returns all.
	ListAuditEntries(ctx context.Context, limit int) ([]model.AuditLogEntry, error)

	// DeleteOldestAuditEntries removes the n entries with the oldest timestamps.
	DeleteOldestAuditEntries(ctx context.Context, n int) error
}

// Store is the local storage collaborator. Implementations provide atomic
// multi-collection writes through Update but no cross-process locking.
type Store interface {
	EntityStore
	HistoryStore
	BackupStore
	AuditStore

	// Update runs fn against a transaction-bound Store. The transaction commits
	// if fn returns nil and rolls back otherwise; fn's error is returned as is.
	Update(ctx context.Context, fn func(tx Store) error) error

	// Close releases the underlying resources.
	Close() error
}

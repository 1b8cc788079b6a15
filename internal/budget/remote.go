package budget

import (
	"context"
	"io"
)

// Remote is the cloud store shared by every device of a budget.
// Snapshots are opaque encrypted blobs addressed by the derived budget ID, so
// the remote never learns the password or the share code.
type Remote interface {
	// PutSnapshot stores the snapshot for budgetID, replacing any previous one.
	// size is the number of bytes that will be read from r.
	// version is stored alongside the snapshot for staleness checks.
	PutSnapshot(ctx context.Context, budgetID string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the current snapshot for budgetID to w.
	// Returns a *NotFoundError if nothing has been stored yet.
	GetSnapshot(ctx context.Context, budgetID string, w io.Writer) error

	// SnapshotVersion returns the stored version for budgetID, or 0 if none.
	SnapshotVersion(ctx context.Context, budgetID string) (int64, error)

	// ValidateSetup verifies that the remote is reachable and properly configured.
	ValidateSetup(ctx context.Context) error
}

package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"budgetsync/internal/budget"
)

// FileSystemRemote is a filesystem-based implementation of the Remote interface.
// A shared directory (network mount, synced folder) acts as the cloud:
//
//	<root>/
//	  snapshots/
//	    <budgetID>.snap      (encrypted snapshot)
//	    <budgetID>.version   (decimal version marker)
type FileSystemRemote struct {
	name         string
	root         string
	snapshotsDir string
}

// NewFileSystemRemote creates a new filesystem remote rooted at the given path.
func NewFileSystemRemote(name, root string) (*FileSystemRemote, error) {
	snapshotsDir := filepath.Join(root, "snapshots")

	if err := os.MkdirAll(snapshotsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	return &FileSystemRemote{
		name:         name,
		root:         root,
		snapshotsDir: snapshotsDir,
	}, nil
}

// PutSnapshot stores the snapshot for budgetID, then its version marker.
func (v *FileSystemRemote) PutSnapshot(ctx context.Context, budgetID string, r io.Reader, size int64, version int64) error {
	if err := checkBudgetID(budgetID); err != nil {
		return err
	}
	if err := v.writeFile(v.snapshotPath(budgetID), r, size); err != nil {
		return err
	}

	versionData := strconv.FormatInt(version, 10)
	return v.writeFile(v.versionPath(budgetID), strings.NewReader(versionData), int64(len(versionData)))
}

// SnapshotVersion returns the stored version for budgetID.
// Returns 0 if no version file exists.
func (v *FileSystemRemote) SnapshotVersion(ctx context.Context, budgetID string) (int64, error) {
	if err := checkBudgetID(budgetID); err != nil {
		return 0, err
	}
	data, err := os.ReadFile(v.versionPath(budgetID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// GetSnapshot writes the stored snapshot for budgetID to w.
func (v *FileSystemRemote) GetSnapshot(ctx context.Context, budgetID string, w io.Writer) error {
	if err := checkBudgetID(budgetID); err != nil {
		return err
	}
	f, err := os.Open(v.snapshotPath(budgetID))
	if err != nil {
		if os.IsNotExist(err) {
			return &budget.NotFoundError{Entity: "snapshot", Name: budgetID}
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the remote directories are accessible.
func (v *FileSystemRemote) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{v.root, v.snapshotsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("remote directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("remote path is not a directory: %s", dir)
		}
	}
	return nil
}

func (v *FileSystemRemote) snapshotPath(budgetID string) string {
	return filepath.Join(v.snapshotsDir, budgetID+".snap")
}

func (v *FileSystemRemote) versionPath(budgetID string) string {
	return filepath.Join(v.snapshotsDir, budgetID+".version")
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemRemote) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// checkBudgetID rejects IDs that could escape the snapshot directory or key prefix.
func checkBudgetID(budgetID string) error {
	if budgetID == "" || strings.ContainsAny(budgetID, `/\`) || strings.HasPrefix(budgetID, ".") {
		return budget.NewInvalidInput("budgetID", fmt.Sprintf("invalid budget id %q", budgetID))
	}
	return nil
}

var _ budget.Remote = (*FileSystemRemote)(nil)

package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"budgetsync/internal/budget"
)

// MemoryRemote is an in-memory implementation of the Remote interface.
// It keeps every snapshot in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryRemote struct {
	name     string
	data     map[string][]byte // budgetID -> snapshot
	versions map[string]int64  // budgetID -> version
	puts     int
	mu       sync.RWMutex
}

// NewMemoryRemote creates a new in-memory remote with the given name.
func NewMemoryRemote(name string) *MemoryRemote {
	return &MemoryRemote{
		name:     name,
		data:     make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

// PutSnapshot stores the snapshot for budgetID, replacing any previous one.
func (m *MemoryRemote) PutSnapshot(ctx context.Context, budgetID string, r io.Reader, size int64, version int64) error {
	if err := checkBudgetID(budgetID); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[budgetID] = data
	m.versions[budgetID] = version
	m.puts++
	return nil
}

// GetSnapshot writes the stored snapshot for budgetID to w.
func (m *MemoryRemote) GetSnapshot(ctx context.Context, budgetID string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[budgetID]
	if !ok {
		return &budget.NotFoundError{Entity: "snapshot", Name: budgetID}
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return nil
}

// SnapshotVersion returns the stored version for budgetID, or 0 if none.
func (m *MemoryRemote) SnapshotVersion(ctx context.Context, budgetID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.versions[budgetID], nil
}

// ValidateSetup always succeeds for the in-memory remote.
func (m *MemoryRemote) ValidateSetup(ctx context.Context) error {
	return nil
}

// Puts returns how many snapshots have been stored. Tests use it to tell
// uploads from downloads.
func (m *MemoryRemote) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// Corrupt replaces the stored snapshot for budgetID with data, keeping its version.
func (m *MemoryRemote) Corrupt(budgetID string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[budgetID] = data
}

// Compile-time check that MemoryRemote implements budget.Remote interface
var _ budget.Remote = (*MemoryRemote)(nil)

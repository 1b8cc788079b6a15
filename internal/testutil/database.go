package testutil

import (
	"testing"

	"budgetsync/internal/budget"
	"budgetsync/internal/database"
)

// NewTestStore creates an in-memory SQLite store with migrations applied.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) budget.Store {
	t.Helper()

	s, err := database.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

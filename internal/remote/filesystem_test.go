package remote

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"budgetsync/internal/budget"
)

func TestNewFileSystemRemote(t *testing.T) {
	t.Run("creates directory structure", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "remote")

		v, err := NewFileSystemRemote("test", root)
		if err != nil {
			t.Fatalf("NewFileSystemRemote() error = %v", err)
		}

		if _, err := os.Stat(filepath.Join(root, "snapshots")); err != nil {
			t.Errorf("snapshots directory not created: %v", err)
		}

		if v.name != "test" {
			t.Errorf("name = %q, want %q", v.name, "test")
		}
	})

	t.Run("works with existing directory", func(t *testing.T) {
		if _, err := NewFileSystemRemote("test", t.TempDir()); err != nil {
			t.Fatalf("NewFileSystemRemote() error = %v", err)
		}
	})
}

func TestFileSystemRemote_PutSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		size    int64
		wantErr bool
	}{
		{name: "store snapshot successfully", data: "hello world", size: 11},
		{name: "size mismatch", data: "hello", size: 100, wantErr: true},
		{name: "empty snapshot", data: "", size: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			v, err := NewFileSystemRemote("test", t.TempDir())
			if err != nil {
				t.Fatalf("NewFileSystemRemote() error = %v", err)
			}

			err = v.PutSnapshot(ctx, "budget_abc", strings.NewReader(tt.data), tt.size, 42)
			if (err != nil) != tt.wantErr {
				t.Fatalf("PutSnapshot() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantErr {
				if _, err := os.Stat(v.snapshotPath("budget_abc")); !os.IsNotExist(err) {
					t.Error("failed write left a snapshot behind")
				}
				return
			}

			data, err := os.ReadFile(v.snapshotPath("budget_abc"))
			if err != nil {
				t.Fatalf("failed to read snapshot file: %v", err)
			}
			if string(data) != tt.data {
				t.Errorf("snapshot = %q, want %q", string(data), tt.data)
			}
			if got, _ := v.SnapshotVersion(ctx, "budget_abc"); got != 42 {
				t.Errorf("SnapshotVersion() = %d, want 42", got)
			}
		})
	}
}

func TestFileSystemRemote_PutSnapshot_Overwrites(t *testing.T) {
	ctx := context.Background()
	v, err := NewFileSystemRemote("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemRemote() error = %v", err)
	}

	data1 := "version 1"
	if err := v.PutSnapshot(ctx, "budget_abc", strings.NewReader(data1), int64(len(data1)), 1); err != nil {
		t.Fatalf("first PutSnapshot() error = %v", err)
	}

	data2 := "version 2"
	if err := v.PutSnapshot(ctx, "budget_abc", strings.NewReader(data2), int64(len(data2)), 2); err != nil {
		t.Fatalf("second PutSnapshot() error = %v", err)
	}

	var buf bytes.Buffer
	if err := v.GetSnapshot(ctx, "budget_abc", &buf); err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if buf.String() != data2 {
		t.Errorf("snapshot = %q, want %q", buf.String(), data2)
	}
	if got, _ := v.SnapshotVersion(ctx, "budget_abc"); got != 2 {
		t.Errorf("SnapshotVersion() = %d, want 2", got)
	}
}

func TestFileSystemRemote_GetSnapshot_NotFound(t *testing.T) {
	v, err := NewFileSystemRemote("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemRemote() error = %v", err)
	}

	var buf bytes.Buffer
	err = v.GetSnapshot(context.Background(), "budget_missing", &buf)
	if !errors.Is(err, budget.ErrNotFound) {
		t.Errorf("GetSnapshot() error = %v, want ErrNotFound", err)
	}
	if got, err := v.SnapshotVersion(context.Background(), "budget_missing"); err != nil || got != 0 {
		t.Errorf("SnapshotVersion() = %d, %v; want 0, nil", got, err)
	}
}

func TestFileSystemRemote_ValidateSetup(t *testing.T) {
	t.Run("valid setup", func(t *testing.T) {
		v, err := NewFileSystemRemote("test", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemRemote() error = %v", err)
		}

		if err := v.ValidateSetup(context.Background()); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})

	t.Run("missing root directory", func(t *testing.T) {
		v := &FileSystemRemote{
			name:         "test",
			root:         "/nonexistent/path",
			snapshotsDir: "/nonexistent/path/snapshots",
		}

		if err := v.ValidateSetup(context.Background()); err == nil {
			t.Error("ValidateSetup() expected error for missing root")
		}
	})
}

func TestFileSystemRemote_AtomicWrite(t *testing.T) {
	v, err := NewFileSystemRemote("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemRemote() error = %v", err)
	}

	data := "hello world"
	if err := v.PutSnapshot(context.Background(), "budget_abc", strings.NewReader(data), int64(len(data)), 1); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}

	entries, err := os.ReadDir(v.snapshotsDir)
	if err != nil {
		t.Fatalf("failed to read snapshots dir: %v", err)
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}

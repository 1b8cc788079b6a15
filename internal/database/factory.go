package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"budgetsync/internal/budget"
	"budgetsync/internal/config"
)

// NewStoreFromConfig opens the local budget store for one device. SQLite
// stores live at <data_dir>/<deviceID>.db so several devices can share a
// data directory in tests and demos.
func NewStoreFromConfig(cfg config.DatabaseConfig, deviceID string) (budget.Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		path, err := devicePath(cfg.DataDir, deviceID)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("unknown database type: %q", cfg.Type)
}

func devicePath(dataDir, deviceID string) (string, error) {
	if dataDir == "" {
		return "", fmt.Errorf("data_dir required for sqlite database")
	}
	switch {
	case deviceID == "":
		return "", budget.NewInvalidInput("deviceId", "device id required for sqlite database")
	case deviceID == "." || deviceID == ".." || strings.ContainsAny(deviceID, `/\`):
		return "", budget.NewInvalidFormat("deviceId", "device id cannot be used as a file name")
	}
	return filepath.Join(dataDir, deviceID+".db"), nil
}

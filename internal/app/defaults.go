package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment overrides, most specific first.
const (
	envConfigPath = "BUDGETSYNC_CONFIG_PATH"
	envHome       = "BUDGETSYNC_HOME"
	envXDGConfig  = "XDG_CONFIG_HOME"
	envXDGData    = "XDG_DATA_HOME"
)

// GetDefaults returns the default config path and directories:
//   - config_path: $BUDGETSYNC_CONFIG_PATH, else $XDG_CONFIG_HOME/budgetsync.toml,
//     else ~/.config/budgetsync.toml
//   - base_dir: $BUDGETSYNC_HOME, else $XDG_DATA_HOME/budgetsync,
//     else ~/.local/share/budgetsync
//   - log_dir and data_dir sit under base_dir
func GetDefaults() (map[string]string, error) {
	configPath, err := xdgPath(envConfigPath, envXDGConfig, ".config", "budgetsync.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := xdgPath(envHome, envXDGData, filepath.Join(".local", "share"), "budgetsync")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"data_dir":    filepath.Join(baseDir, "data"),
	}, nil
}

// xdgPath resolves a path from an explicit override, an XDG base directory,
// or the home directory, in that order.
func xdgPath(override, xdgVar, homeRel, name string) (string, error) {
	if p := os.Getenv(override); p != "" {
		return p, nil
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, name), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, homeRel, name), nil
}

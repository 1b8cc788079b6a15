package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name       string
		env        map[string]string
		wantConfig string
		wantBase   string
	}{
		{
			name:       "explicit overrides",
			env:        map[string]string{envConfigPath: "/custom/budgetsync.toml", envHome: "/custom/budgetsync", envXDGConfig: "/xdg/config", envXDGData: "/xdg/data"},
			wantConfig: "/custom/budgetsync.toml",
			wantBase:   "/custom/budgetsync",
		},
		{
			name:       "xdg directories",
			env:        map[string]string{envXDGConfig: "/xdg/config", envXDGData: "/xdg/data"},
			wantConfig: "/xdg/config/budgetsync.toml",
			wantBase:   "/xdg/data/budgetsync",
		},
		{
			name:       "home directory",
			wantConfig: filepath.Join(home, ".config", "budgetsync.toml"),
			wantBase:   filepath.Join(home, ".local", "share", "budgetsync"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{envConfigPath, envHome, envXDGConfig, envXDGData} {
				t.Setenv(k, tt.env[k])
			}

			defaults, err := GetDefaults()
			if err != nil {
				t.Fatalf("GetDefaults() error = %v", err)
			}
			if defaults["config_path"] != tt.wantConfig {
				t.Errorf("config_path = %q, want %q", defaults["config_path"], tt.wantConfig)
			}
			if defaults["base_dir"] != tt.wantBase {
				t.Errorf("base_dir = %q, want %q", defaults["base_dir"], tt.wantBase)
			}
			if defaults["log_dir"] != filepath.Join(tt.wantBase, "log") {
				t.Errorf("log_dir = %q", defaults["log_dir"])
			}
			if defaults["data_dir"] != filepath.Join(tt.wantBase, "data") {
				t.Errorf("data_dir = %q", defaults["data_dir"])
			}
		})
	}
}

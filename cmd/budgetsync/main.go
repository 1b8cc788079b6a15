package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"budgetsync/internal/app"
	"budgetsync/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// passwordEnv lets scripts supply the budget password without a prompt.
const passwordEnv = "BUDGETSYNC_PASSWORD"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Sync", "BackupRestore").
func newApp(cmd *cobra.Command, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewApp(cfg, operation, verbose)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// unlock prompts for the budget password and unlocks a.
func unlock(ctx context.Context, a *app.App) error {
	password, err := readPassword()
	if err != nil {
		return err
	}
	if _, err := a.Unlock(ctx, password); err != nil {
		return fmt.Errorf("unlocking budget: %w", err)
	}
	return nil
}

func readPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal for password prompt: set %s", passwordEnv)
	}
	fmt.Fprint(os.Stderr, "Budget password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// failed marks the operation as failed so the closing log line says so.
func failed(a *app.App, err error) error {
	if err != nil {
		a.Operation().Fail()
	}
	return err
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return enc.Close()
}

var errAborted = errors.New("aborted")

func confirm(prompt string) error {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	var answer string
	fmt.Scanln(&answer)
	if !strings.EqualFold(strings.TrimSpace(answer), "y") {
		return errAborted
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "budgetsync",
	Short:        "Encrypted multi-device budget sync",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		author, _ := cmd.Flags().GetString("author")
		deviceID := uuid.New().String()
		cfg := config.NewConfig(deviceID, author, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Device ID:  %s\n", cfg.DeviceID)
		fmt.Printf("Author:     %s\n", cfg.Author)
		fmt.Printf("Share Code: %s\n", cfg.ShareCode)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		for _, r := range cfg.Remotes {
			fmt.Printf("Remote:     %s (%s)\n", r.Name, r.Type)
		}
		return nil
	},
}

// identity command
var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Show the budget id derived from password and share code",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Identity")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(cmd.Context(), a); err != nil {
			return failed(a, err)
		}
		fmt.Printf("Budget ID:   %s\n", a.Identity().BudgetID)
		fmt.Printf("Share Code:  %s\n", a.Identity().ShareCode)
		fmt.Printf("Fingerprint: %s\n", a.Fingerprint())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Echo debug logs to stderr")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("author", "", "Name recorded on history commits")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(sharecodeCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(dbCmd)
}

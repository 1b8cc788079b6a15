package main

import (
	"fmt"
	"strings"

	"budgetsync/internal/app"
	"budgetsync/internal/config"
	"budgetsync/internal/sharecode"

	"github.com/spf13/cobra"
)

var sharecodeCmd = &cobra.Command{
	Use:   "sharecode",
	Short: "Generate and inspect share codes",
}

var sharecodeGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new share code",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := sharecode.Generate()
		if err != nil {
			return fmt.Errorf("generating share code: %w", err)
		}
		fmt.Println(sharecode.FormatForDisplay(code))

		save, _ := cmd.Flags().GetBool("save")
		if !save {
			return nil
		}

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if cfg.ShareCode != "" {
			if err := confirm("Replace the configured share code? Other devices will no longer match"); err != nil {
				return err
			}
		}
		cfg.ShareCode = code
		cfg.Sync.SharedBudget = false
		if err := config.Save(defaults["config_path"], cfg); err != nil {
			return err
		}
		fmt.Printf("Saved to %s\n", defaults["config_path"])
		return nil
	},
}

var sharecodeJoinCmd = &cobra.Command{
	Use:   "join CODE",
	Short: "Join an existing budget with its share code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := sharecode.Normalize(args[0])
		if data := sharecode.ParseQRData(args[0]); data != nil {
			code = data.ShareCode
		}
		if !sharecode.Validate(code) {
			return fmt.Errorf("invalid share code")
		}

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		cfg.ShareCode = code
		cfg.Sync.SharedBudget = true
		if err := config.Save(defaults["config_path"], cfg); err != nil {
			return err
		}
		fmt.Printf("Joined budget with share code %s\n", sharecode.FormatForDisplay(code))
		return nil
	},
}

var sharecodeValidateCmd = &cobra.Command{
	Use:   "validate CODE",
	Short: "Check a share code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !sharecode.Validate(args[0]) {
			if unknown := sharecode.UnknownWords(args[0]); len(unknown) > 0 {
				return fmt.Errorf("invalid share code: unknown words: %s", strings.Join(unknown, ", "))
			}
			return fmt.Errorf("invalid share code: expected %d words, got %d",
				sharecode.WordCount, len(strings.Fields(args[0])))
		}
		fmt.Printf("valid: %s\n", sharecode.FormatForDisplay(args[0]))
		return nil
	},
}

var sharecodeQRCmd = &cobra.Command{
	Use:   "qr [CODE]",
	Short: "Print the QR payload for a share code (defaults to the configured one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		var code string
		var creator *sharecode.CreatorInfo
		if len(args) > 0 {
			code = args[0]
		} else {
			cfg, err := config.ReadFromFile(defaults["config_path"])
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}
			code = cfg.ShareCode
			if cfg.Author != "" {
				creator = &sharecode.CreatorInfo{UserName: cfg.Author}
			}
		}

		data, err := sharecode.GenerateQRData(code, creator)
		if err != nil {
			return err
		}
		fmt.Println(data)
		return nil
	},
}

var sharecodeParseCmd = &cobra.Command{
	Use:   "parse PAYLOAD",
	Short: "Decode a scanned QR payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data := sharecode.ParseQRData(args[0])
		if data == nil {
			return fmt.Errorf("not a share code payload")
		}
		return printYAML(data)
	},
}

func init() {
	sharecodeCmd.AddCommand(sharecodeGenerateCmd)
	sharecodeCmd.AddCommand(sharecodeJoinCmd)
	sharecodeCmd.AddCommand(sharecodeValidateCmd)
	sharecodeCmd.AddCommand(sharecodeQRCmd)
	sharecodeCmd.AddCommand(sharecodeParseCmd)
	sharecodeGenerateCmd.Flags().Bool("save", false, "Store the code in the config file")
}

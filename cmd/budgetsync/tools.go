package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"budgetsync/internal/pipeline"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// cash and balance commands
var cashCmd = &cobra.Command{
	Use:   "cash AMOUNT",
	Short: "Set unassigned cash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[0])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
		}

		a, err := newApp(cmd, "SetUnassignedCash")
		if err != nil {
			return err
		}
		defer a.Close()

		return failed(a, a.SetUnassignedCash(cmd.Context(), amount))
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance AMOUNT",
	Short: "Set the reconciled bank balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[0])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
		}
		calculated, _ := cmd.Flags().GetBool("calculated")

		a, err := newApp(cmd, "SetActualBalance")
		if err != nil {
			return err
		}
		defer a.Close()

		return failed(a, a.SetActualBalance(cmd.Context(), amount, !calculated))
	},
}

// audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the remote call audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent remote calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "AuditList")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, e := range a.Audit().Recent(cmd.Context(), limit) {
			status := "ok"
			if !e.Success {
				status = "FAIL " + e.ErrorMessage
			}
			fmt.Printf("%s  %-4s %-16s  %6dms  %8dB  %s\n",
				formatMillis(e.Timestamp), e.Method, e.Endpoint, e.ResponseTimeMs, e.EncryptedPayloadSize, status)
		}
		return nil
	},
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "AuditStats")
		if err != nil {
			return err
		}
		defer a.Close()

		return printYAML(a.Audit().Stats(cmd.Context()))
	},
}

// pipeline command
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Diagnose the cloud payload pipeline",
}

func readJSONFile(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return v, nil
}

var pipelineTestCmd = &cobra.Command{
	Use:   "test FILE",
	Short: "Round-trip a JSON file through the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := readJSONFile(args[0])
		if err != nil {
			return err
		}
		report := pipeline.TestPipeline(v)
		if err := printYAML(report); err != nil {
			return err
		}
		if !report.Success {
			return fmt.Errorf("pipeline round trip failed")
		}
		return nil
	},
}

var pipelineAnalyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Report payload size at each pipeline stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := readJSONFile(args[0])
		if err != nil {
			return err
		}
		analysis := pipeline.AnalyzeCompression(v)
		if analysis == nil {
			return fmt.Errorf("value cannot be serialized")
		}
		return printYAML(analysis)
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Local database maintenance",
}

var dbSnapshotCmd = &cobra.Command{
	Use:   "snapshot [DEST]",
	Short: "Write a consistent copy of the local database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "DatabaseSnapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		dest := fmt.Sprintf("budgetsync-%s.db", time.Now().UTC().Format("20060102T150405Z"))
		if len(args) > 0 {
			dest = args[0]
		}
		if err := a.SnapshotDatabase(cmd.Context(), dest); err != nil {
			return failed(a, err)
		}
		fmt.Printf("Snapshot written to %s\n", dest)
		return nil
	},
}

var dbSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the local database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "DatabaseSchema")
		if err != nil {
			return err
		}
		defer a.Close()

		schema, err := a.Schema(cmd.Context())
		if err != nil {
			return failed(a, err)
		}
		fmt.Print(schema)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "DatabaseStatus")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.MigrationStatus()
		if err != nil {
			return failed(a, err)
		}
		return printYAML(st)
	},
}

func init() {
	rootCmd.AddCommand(cashCmd)
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().Bool("calculated", false, "Mark the balance as calculated rather than entered")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditStatsCmd)
	auditListCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")

	pipelineCmd.AddCommand(pipelineTestCmd)
	pipelineCmd.AddCommand(pipelineAnalyzeCmd)

	dbCmd.AddCommand(dbSnapshotCmd)
	dbCmd.AddCommand(dbSchemaCmd)
	dbCmd.AddCommand(dbStatusCmd)
}

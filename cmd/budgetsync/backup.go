package main

import (
	"fmt"
	"time"

	"budgetsync/internal/backup"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage local backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Take a manual backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "BackupCreate")
		if err != nil {
			return err
		}
		defer a.Close()

		id := a.Backups().CreateManualBackup(cmd.Context())
		if id == "" {
			return failed(a, fmt.Errorf("backup failed, see log for details"))
		}
		fmt.Println(id)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "BackupList")
		if err != nil {
			return err
		}
		defer a.Close()

		backups := a.Backups().GetBackups(cmd.Context())
		if len(backups) == 0 {
			fmt.Println("No backups.")
			return nil
		}
		for _, b := range backups {
			fmt.Printf("%s  %s  %-14s  %5d records  %s\n",
				b.ID,
				time.UnixMilli(b.Timestamp).Format("2006-01-02 15:04:05"),
				b.Type,
				b.Metadata.TotalRecords,
				backup.FormatSize(b.Metadata.SizeEstimate),
			)
		}
		return nil
	},
}

var backupStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stored backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "BackupStats")
		if err != nil {
			return err
		}
		defer a.Close()

		return printYAML(a.Backups().GetBackupStats(cmd.Context()))
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Replace local data with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		push, _ := cmd.Flags().GetBool("push")
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if err := confirm("Replace all local budget data with " + args[0] + "?"); err != nil {
				return err
			}
		}

		a, err := newApp(cmd, "BackupRestore")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		summary, err := a.Backups().RestoreFromBackup(ctx, args[0])
		if err != nil {
			return failed(a, err)
		}
		fmt.Printf("Restored %d record(s), skipped %d\n", summary.Restored(), summary.Skipped())

		if !push {
			return nil
		}
		if err := unlock(ctx, a); err != nil {
			return failed(a, err)
		}
		o, err := a.Sync()
		if err != nil {
			return failed(a, err)
		}
		res, err := o.ForcePush(ctx)
		if err != nil {
			return failed(a, err)
		}
		fmt.Printf("Pushed %d record(s)\n", res.Records)
		return nil
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete [ID]",
	Short: "Delete one backup, or all with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) == 1) {
			return fmt.Errorf("give either a backup id or --all")
		}

		a, err := newApp(cmd, "BackupDelete")
		if err != nil {
			return err
		}
		defer a.Close()

		var ok bool
		if all {
			ok = a.Backups().DeleteAllBackups(cmd.Context())
		} else {
			ok = a.Backups().DeleteBackup(cmd.Context(), args[0])
		}
		if !ok {
			return failed(a, fmt.Errorf("delete failed, see log for details"))
		}
		fmt.Println("Deleted.")
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupStatsCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupRestoreCmd.Flags().Bool("push", false, "Upload the restored data afterwards")
	backupRestoreCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	backupDeleteCmd.Flags().Bool("all", false, "Delete every backup")
}

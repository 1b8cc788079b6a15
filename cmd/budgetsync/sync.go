package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"budgetsync/internal/cloudsync"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the local budget with the remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		push, _ := cmd.Flags().GetBool("push")

		a, err := newApp(cmd, "Sync")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if err := unlock(ctx, a); err != nil {
			return failed(a, err)
		}
		if err := a.ValidateRemote(ctx); err != nil {
			return failed(a, err)
		}
		o, err := a.Sync()
		if err != nil {
			return failed(a, err)
		}

		if watch {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			o.Start(ctx)
			fmt.Println("Watching for changes, Ctrl-C to stop")
			<-ctx.Done()
			o.Stop()
			return printYAML(o.Status())
		}

		var res *cloudsync.Result
		if push {
			res, err = o.ForcePush(ctx)
		} else {
			res, err = o.ForceSync(ctx)
		}
		if err != nil {
			if res != nil {
				printYAML(res)
			}
			return failed(a, err)
		}
		if !res.Success {
			fmt.Println(res.Reason)
			return nil
		}
		fmt.Printf("%s complete: %d record(s)\n", res.Direction, res.Records)
		if res.BackupID != "" {
			fmt.Printf("Pre-sync backup: %s\n", res.BackupID)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("watch", false, "Keep running and sync on a debounce schedule")
	syncCmd.Flags().Bool("push", false, "Upload local data without reading the remote")
	syncCmd.MarkFlagsMutuallyExclusive("watch", "push")
}

package main

import (
	"fmt"
	"time"

	"budgetsync/internal/config"
	"budgetsync/internal/history"
	"budgetsync/internal/model"

	"github.com/spf13/cobra"
)

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the change history",
}

var historyLogCmd = &cobra.Command{
	Use:   "log",
	Short: "List recent commits",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "HistoryLog")
		if err != nil {
			return err
		}
		defer a.Close()

		commits := a.History().GetRecentCommits(cmd.Context(), limit)
		if len(commits) == 0 {
			fmt.Println("No commits recorded.")
			return nil
		}
		for _, c := range commits {
			fmt.Printf("%s  %s  %-12s  %s\n", shortHash(c.Hash), formatMillis(c.Timestamp), c.Author, c.Message)
		}
		return nil
	},
}

var historyEntityCmd = &cobra.Command{
	Use:   "entity TYPE [ID]",
	Short: "List changes to one entity type or entity",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "HistoryEntity")
		if err != nil {
			return err
		}
		defer a.Close()

		var id string
		if len(args) == 2 {
			id = args[1]
		}
		changes := a.History().GetEntityHistory(cmd.Context(), args[0], id)
		if len(changes) == 0 {
			fmt.Println("No changes recorded.")
			return nil
		}
		for _, c := range changes {
			fmt.Printf("%s  %s  %-7s  %s\n", shortHash(c.CommitHash), formatMillis(c.Timestamp), c.ChangeType, c.Description)
		}
		return nil
	},
}

var historyActivityCmd = &cobra.Command{
	Use:   "activity",
	Short: "List recent changes to cash, balances and debts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "HistoryActivity")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, c := range a.History().GetRecentActivity(cmd.Context(), limit) {
			fmt.Printf("%s  %-15s  %s\n", formatMillis(c.Timestamp), c.EntityType, c.Description)
		}
		return nil
	},
}

var historyPatternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Summarize change patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		window, _ := cmd.Flags().GetString("window")

		a, err := newApp(cmd, "HistoryPatterns")
		if err != nil {
			return err
		}
		defer a.Close()

		p := a.History().GetChangePatterns(cmd.Context(), config.Duration(window, 0))
		if p == nil {
			return failed(a, fmt.Errorf("analysis failed, see log for details"))
		}
		return printYAML(p)
	},
}

var historyCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Drop commits beyond the retention limit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "HistoryCleanup")
		if err != nil {
			return err
		}
		defer a.Close()

		n := a.History().Cleanup(cmd.Context())
		fmt.Printf("Removed %d commit(s)\n", n)
		return nil
	},
}

var historyBranchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Manage history branches",
}

var historyBranchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List branches",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "BranchList")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, b := range a.History().GetBranches(cmd.Context()) {
			marker := " "
			if b.IsActive {
				marker = "*"
			}
			fmt.Printf("%s %-20s  %s  %s\n", marker, b.Name, shortHash(b.HeadCommitHash), b.Description)
		}
		return nil
	},
}

var historyBranchCreateCmd = &cobra.Command{
	Use:   "create NAME COMMIT",
	Short: "Create a branch at a commit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")

		a, err := newApp(cmd, "BranchCreate")
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.History().CreateBranch(cmd.Context(), history.BranchOptions{
			Name:           args[0],
			FromCommitHash: args[1],
			Description:    description,
			Author:         a.Config().Author,
		})
		if err != nil {
			return failed(a, err)
		}
		fmt.Printf("Created branch %s at %s\n", b.Name, shortHash(b.HeadCommitHash))
		return nil
	},
}

var historyBranchSwitchCmd = &cobra.Command{
	Use:   "switch NAME",
	Short: "Make a branch active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "BranchSwitch")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.History().SwitchBranch(cmd.Context(), args[0]); err != nil {
			return failed(a, err)
		}
		fmt.Printf("Switched to %s\n", args[0])
		return nil
	},
}

var historyTagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage history tags",
}

var historyTagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "TagList")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, t := range a.History().GetTags(cmd.Context()) {
			fmt.Printf("%-20s  %-9s  %s  %s\n", t.Name, t.TagType, shortHash(t.CommitHash), t.Description)
		}
		return nil
	},
}

var historyTagCreateCmd = &cobra.Command{
	Use:   "create NAME COMMIT",
	Short: "Tag a commit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		tagType, _ := cmd.Flags().GetString("type")

		a, err := newApp(cmd, "TagCreate")
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.History().CreateTag(cmd.Context(), history.TagOptions{
			Name:        args[0],
			CommitHash:  args[1],
			Description: description,
			TagType:     model.TagType(tagType),
			Author:      a.Config().Author,
		})
		if err != nil {
			return failed(a, err)
		}
		fmt.Printf("Tagged %s as %s\n", shortHash(t.CommitHash), t.Name)
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyLogCmd)
	historyCmd.AddCommand(historyEntityCmd)
	historyCmd.AddCommand(historyActivityCmd)
	historyCmd.AddCommand(historyPatternsCmd)
	historyCmd.AddCommand(historyCleanupCmd)
	historyCmd.AddCommand(historyBranchCmd)
	historyCmd.AddCommand(historyTagCmd)
	historyLogCmd.Flags().IntP("limit", "n", 50, "Maximum number of commits to show")
	historyActivityCmd.Flags().IntP("limit", "n", 20, "Maximum number of changes to show")
	historyPatternsCmd.Flags().String("window", "", "Analysis window, e.g. 168h (default from config)")

	historyBranchCmd.AddCommand(historyBranchListCmd)
	historyBranchCmd.AddCommand(historyBranchCreateCmd)
	historyBranchCmd.AddCommand(historyBranchSwitchCmd)
	historyBranchCreateCmd.Flags().String("description", "", "Branch description")

	historyTagCmd.AddCommand(historyTagListCmd)
	historyTagCmd.AddCommand(historyTagCreateCmd)
	historyTagCreateCmd.Flags().String("description", "", "Tag description")
	historyTagCreateCmd.Flags().String("type", string(model.TagMilestone), "release, milestone or backup")
}

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"trackreel/internal/logging"
	"trackreel/internal/stage"
	"trackreel/internal/textutil"
	"trackreel/internal/trackdb"
)

// openStateStores opens the stores for maintenance commands that never run
// a stage.
func openStateStores(ctx *commandContext) (storeSet, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return storeSet{}, err
	}
	return openStores(cfg, logging.NewNop())
}

func ledgerStage(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	name, err := stage.ParseName(value)
	if err != nil {
		return "", err
	}
	if name != stage.Images && name != stage.Videos {
		return "", fmt.Errorf("--stage must be images or videos (got %q)", value)
	}
	return string(name.TrackStage()), nil
}

func newFailedCommand(ctx *commandContext) *cobra.Command {
	failedCmd := &cobra.Command{
		Use:   "failed",
		Short: "Inspect or clear the failure ledger",
	}
	failedCmd.AddCommand(newFailedListCommand(ctx))
	failedCmd.AddCommand(newFailedClearCommand(ctx))
	return failedCmd
}

func listFailures(c context.Context, ledger *trackdb.Ledger, trackStage string) ([]trackdb.FailedTask, error) {
	if trackStage == "" {
		return ledger.List(c)
	}
	return ledger.ListStage(c, trackStage)
}

func newFailedListCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List failed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			trackStage, err := ledgerStage(stageFlag)
			if err != nil {
				return err
			}
			stores, err := openStateStores(ctx)
			if err != nil {
				return err
			}
			tasks, err := listFailures(cmd.Context(), stores.failures, trackStage)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, tasks)
			}
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "No failed tasks")
				return nil
			}
			rows := make([][]string, 0, len(tasks))
			for _, task := range tasks {
				failedAt := "-"
				if !task.FailedAt.IsZero() {
					failedAt = humanize.Time(task.FailedAt.Time)
				}
				rows = append(rows, []string{
					task.TrackID,
					task.Stage,
					failedAt,
					strconv.Itoa(task.RetryCount),
					textutil.Truncate(task.ErrorMessage, 57),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Track", "Stage", "Failed", "Retries", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&stageFlag, "stage", "", "Only list images or videos failures")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the tasks as JSON")
	return cmd
}

func newFailedClearCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove failed tasks without retrying them",
		RunE: func(cmd *cobra.Command, args []string) error {
			trackStage, err := ledgerStage(stageFlag)
			if err != nil {
				return err
			}
			stores, err := openStateStores(ctx)
			if err != nil {
				return err
			}
			c := cmd.Context()
			removed := 0
			if trackStage == "" {
				drained, err := stores.failures.DrainAll(c)
				if err != nil {
					return err
				}
				removed = len(drained)
			} else {
				tasks, err := stores.failures.ListStage(c, trackStage)
				if err != nil {
					return err
				}
				for _, task := range tasks {
					ok, err := stores.failures.Remove(c, task.TrackID, task.Stage)
					if err != nil {
						return err
					}
					if ok {
						removed++
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d failed task(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&stageFlag, "stage", "", "Only clear images or videos failures")
	return cmd
}

func newCheckpointCommand(ctx *commandContext) *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or discard the interrupted-run checkpoint",
	}

	var jsonOutput bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the checkpoint of an interrupted run",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := openStateStores(ctx)
			if err != nil {
				return err
			}
			cp, active, err := stores.checkpoints.Load(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				if !active {
					return writeJSON(cmd, nil)
				}
				return writeJSON(cmd, cp)
			}
			out := cmd.OutOrStdout()
			if !active {
				fmt.Fprintln(out, "No interrupted run")
				return nil
			}
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("Stage", statusWarn, cp.CurrentStage, colorize))
			fmt.Fprintln(out, renderStatusLine("Current track", statusInfo, orDash(cp.CurrentTrackID), colorize))
			fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, checkpointSummary(cp), colorize))
			if !cp.LastUpdated.IsZero() {
				fmt.Fprintln(out, renderStatusLine("Last update", statusInfo, humanize.Time(cp.LastUpdated.Time), colorize))
			}
			return nil
		},
	}
	showCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the checkpoint as JSON")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard the checkpoint so a new run can start",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := openStateStores(ctx)
			if err != nil {
				return err
			}
			if err := stores.checkpoints.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Checkpoint cleared")
			return nil
		},
	}

	checkpointCmd.AddCommand(showCmd, clearCmd)
	return checkpointCmd
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipstitch/internal/journal"
	"clipstitch/internal/logs"
	"clipstitch/internal/services"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the run journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(ctx, cmd, func(store *journal.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					if runs == nil {
						runs = []journal.Run{}
					}
					return writeJSON(cmd, runs)
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print runs as JSON")

	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryLogCommand(ctx))
	return historyCmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one run and the outcome of each request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(ctx, cmd, func(store *journal.Store) error {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return services.Wrap(services.ErrNotFound, "history", "show", "run "+args[0], nil)
				}
				outcomes, err := store.Outcomes(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				if jsonOutput {
					if outcomes == nil {
						outcomes = []journal.Outcome{}
					}
					return writeJSON(cmd, struct {
						Run      *journal.Run      `json:"run"`
						Outcomes []journal.Outcome `json:"outcomes"`
					}{run, outcomes})
				}
				printRunDetail(cmd.OutOrStdout(), *run, outcomes)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run as JSON")
	return cmd
}

func withJournal(ctx *commandContext, cmd *cobra.Command, fn func(*journal.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		fmt.Fprintln(cmd.OutOrStdout(), "Run journal is disabled (set [journal] enabled = true in the config)")
		return nil
	}
	store, err := journal.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func printRuns(out io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			humanize.Time(run.StartedAt),
			string(run.Status),
			strconv.Itoa(run.Requests),
			strconv.Itoa(run.Produced),
			strconv.Itoa(run.Skipped),
			run.OutputPath,
		})
	}
	headers := []string{"Run", "Started", "Status", "Requests", "Produced", "Skipped", "Output"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}
	fmt.Fprintln(out, renderTable(headers, rows, aligns))
}

func printRunDetail(out io.Writer, run journal.Run, outcomes []journal.Outcome) {
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	if run.TaskFile != "" {
		fmt.Fprintf(out, "Tasks:    %s\n", run.TaskFile)
	}
	fmt.Fprintf(out, "Output:   %s\n", run.OutputPath)
	fmt.Fprintf(out, "Started:  %s (%s)\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Elapsed:  %s\n", run.FinishedAt.Sub(run.StartedAt).Round(100 * time.Millisecond))
	}
	fmt.Fprintf(out, "Requests: %d produced, %d skipped of %d\n", run.Produced, run.Skipped, run.Requests)
	if run.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", run.Error)
	}
	if len(outcomes) == 0 {
		return
	}
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		source := o.SourceID
		if source == "" {
			source = o.SourceRef
		}
		detail := o.Method
		if o.Reason != "" {
			detail = o.Reason + ": " + truncate(o.Error, 60)
		}
		rows = append(rows, []string{strconv.Itoa(o.Index), source, o.State, detail})
	}
	fmt.Fprintln(out, renderTable([]string{"#", "Source", "State", "Detail"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
}

func newHistoryLogCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	cmd := &cobra.Command{
		Use:   "log RUN_ID",
		Short: "Print the log file of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := logs.RunLogPath(cfg.Paths.LogDir, args[0])
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					return services.Wrap(services.ErrNotFound, "history", "log", "no log for run "+args[0], nil)
				}
				return err
			}
			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			err = logs.Follow(cmd.Context(), path, offset, func(line string) {
				fmt.Fprintln(out, line)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as the run appends them")
	return cmd
}

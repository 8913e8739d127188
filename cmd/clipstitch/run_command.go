package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"clipstitch/internal/journal"
	"clipstitch/internal/logging"
	"clipstitch/internal/pipeline"
	"clipstitch/internal/preflight"
	"clipstitch/internal/services"
	"clipstitch/internal/services/ytdlp"
	"clipstitch/internal/tasks"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var retain bool
	var prefetch int
	var showProgress bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run TASKS.json",
		Short: "Cut the listed ranges and merge them into one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			output := strings.TrimSpace(outputPath)
			if output == "" {
				return services.Wrap(services.ErrValidation, "cli", "run", "output path is required (--output)", nil)
			}
			if output, err = filepath.Abs(output); err != nil {
				return fmt.Errorf("resolve output path: %w", err)
			}
			taskFile, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve task file: %w", err)
			}

			if err := preflight.RequireTools(cmd.Context(), cfg); err != nil {
				return err
			}
			requests, err := tasks.Load(taskFile)
			if err != nil {
				return err
			}

			base, err := ctx.logger("")
			if err != nil {
				return err
			}
			runID := uuid.NewString()
			runLog, err := logging.OpenRunLog(base, cfg.Paths.LogDir, runID)
			if err != nil {
				return err
			}
			defer runLog.Close()
			logger := runLog.Logger
			logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
				Dir:     cfg.Paths.LogDir,
				Pattern: logging.RunLogPattern,
				Exclude: []string{runLog.Path},
			})

			opts := []pipeline.Option{
				pipeline.WithRunID(runID),
				pipeline.WithTaskFile(taskFile),
			}
			if cmd.Flags().Changed("retain") {
				opts = append(opts, pipeline.WithRetainScratch(retain))
			}
			if cmd.Flags().Changed("prefetch") {
				if prefetch < 1 {
					return services.Wrap(services.ErrValidation, "cli", "run", "--prefetch must be at least 1", nil)
				}
				opts = append(opts, pipeline.WithPrefetchWorkers(prefetch))
			}

			var store *journal.Store
			if cfg.Journal.Enabled {
				store, err = journal.Open(cfg)
				if err != nil {
					logging.WarnWithContext(logger, "run journal unavailable; continuing without history", "journal_open_failed",
						logging.Error(err),
						logging.String(logging.FieldImpact, "this run will not appear in clipstitch history"),
						logging.String(logging.FieldErrorHint, "check paths.journal_path permissions"),
					)
				} else {
					defer store.Close()
					opts = append(opts, pipeline.WithRecorder(store))
				}
			}

			tools := ctx.tools
			if showProgress && isTerminal(cmd.ErrOrStderr()) {
				bar := newRunProgress(cmd.ErrOrStderr(), len(requests))
				opts = append(opts, pipeline.WithObserver(bar.observe))
				tools.Progress = bar.fetchProgress
				defer bar.finish()
			}

			components, err := pipeline.Assemble(cfg, logger, tools, opts...)
			if err != nil {
				return err
			}
			result, runErr := components.Pipeline.Run(cmd.Context(), requests, output)
			if store != nil {
				pruneHistory(context.WithoutCancel(cmd.Context()), store, cfg.Journal.KeepRuns, logger)
			}
			if runErr != nil && len(result.Outcomes) == 0 {
				return runErr
			}

			if jsonOutput {
				if err := writeJSON(cmd, newRunReport(result, runLog.Path)); err != nil {
					return err
				}
			} else {
				printRunReport(cmd.OutOrStdout(), result, runLog.Path, runErr == nil)
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Path of the merged output video")
	cmd.Flags().BoolVar(&retain, "retain", false, "Keep intermediate clips and the concat manifest")
	cmd.Flags().IntVar(&prefetch, "prefetch", 1, "Number of sources to download concurrently before cutting")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Show a progress bar on interactive terminals")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run report as JSON")
	return cmd
}

func pruneHistory(ctx context.Context, store *journal.Store, keep int, logger *slog.Logger) {
	removed, err := store.Prune(ctx, keep)
	if err != nil {
		logging.WarnWithContext(logger, "run history prune failed", "journal_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "older runs remain in history"),
		)
		return
	}
	if removed > 0 {
		logger.Debug("run history pruned",
			logging.String(logging.FieldEventType, "journal_pruned"),
			logging.Int64("removed", removed),
			logging.Int("keep", keep),
		)
	}
}

type runProgress struct {
	bar *progressbar.ProgressBar
}

func newRunProgress(w io.Writer, total int) *runProgress {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	return &runProgress{bar: bar}
}

func (p *runProgress) observe(ev pipeline.Event) {
	label := ev.SourceID
	if label == "" {
		label = ev.SourceRef
	}
	p.bar.Describe(fmt.Sprintf("[%d/%d] %s %s", ev.Index, ev.Total, ev.State, label))
	if ev.State.Terminal() {
		_ = p.bar.Add(1)
	}
}

func (p *runProgress) fetchProgress(sourceID string, update ytdlp.ProgressUpdate) {
	p.bar.Describe(fmt.Sprintf("fetching %s %.0f%%", sourceID, update.Percent))
}

func (p *runProgress) finish() {
	_ = p.bar.Finish()
}

type outcomeReport struct {
	pipeline.Outcome
	Message string `json:"error,omitempty"`
}

type runReport struct {
	RunID             string          `json:"run_id"`
	OutputPath        string          `json:"output_path"`
	OutputWritten     bool            `json:"output_written"`
	ProducedClipCount int             `json:"produced_clip_count"`
	SkippedCount      int             `json:"skipped_count"`
	LogPath           string          `json:"log_path,omitempty"`
	Outcomes          []outcomeReport `json:"outcomes"`
}

func newRunReport(result pipeline.Result, logPath string) runReport {
	report := runReport{
		RunID:             result.RunID,
		OutputPath:        result.OutputPath,
		OutputWritten:     !result.Empty(),
		ProducedClipCount: result.ProducedClipCount,
		SkippedCount:      result.SkippedCount,
		LogPath:           logPath,
		Outcomes:          make([]outcomeReport, 0, len(result.Outcomes)),
	}
	for _, outcome := range result.Outcomes {
		report.Outcomes = append(report.Outcomes, outcomeReport{Outcome: outcome, Message: outcome.Error()})
	}
	return report
}

func printRunReport(out io.Writer, result pipeline.Result, logPath string, succeeded bool) {
	if len(result.Outcomes) > 0 {
		rows := make([][]string, 0, len(result.Outcomes))
		for _, outcome := range result.Outcomes {
			source := outcome.SourceID
			if source == "" {
				source = outcome.SourceRef
			}
			detail := ""
			switch {
			case outcome.Clip != nil:
				detail = fmt.Sprintf("%s (%s)", outcome.Clip.Method, outcome.Clip.Duration)
			case outcome.Reason != "":
				detail = string(outcome.Reason) + ": " + truncate(outcome.Error(), 60)
			}
			rows = append(rows, []string{strconv.Itoa(outcome.Index), source, string(outcome.State), detail})
		}
		fmt.Fprintln(out, renderTable([]string{"#", "Source", "State", "Detail"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
	}

	switch {
	case result.Empty():
		fmt.Fprintf(out, "No clips produced (%d skipped); %s was not written\n", result.SkippedCount, result.OutputPath)
	case succeeded:
		fmt.Fprintf(out, "Wrote %s from %d clips (%d skipped)\n", result.OutputPath, result.ProducedClipCount, result.SkippedCount)
	default:
		fmt.Fprintf(out, "Run failed with %d clips cut (%d skipped); %s was not written\n", result.ProducedClipCount, result.SkippedCount, result.OutputPath)
	}
	if logPath != "" {
		fmt.Fprintf(out, "Run %s log: %s\n", result.RunID, logPath)
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

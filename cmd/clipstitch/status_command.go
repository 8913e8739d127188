package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipstitch/internal/deps"
	"clipstitch/internal/preflight"
	"clipstitch/internal/services"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check external tools, directories and the source cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tools := preflight.CheckSystemDeps(cmd.Context(), cfg)
			checks := preflight.RunAll(cfg)

			manager, err := cacheManager(ctx)
			if err != nil {
				return err
			}
			stats, statsErr := manager.Stats(cmd.Context())

			if jsonOutput {
				payload := struct {
					ConfigPath string             `json:"config_path"`
					Tools      []deps.Status      `json:"tools"`
					Checks     []preflight.Result `json:"checks"`
					Entries    int                `json:"cache_entries"`
					CacheBytes int64              `json:"cache_bytes"`
					FreeBytes  uint64             `json:"free_bytes"`
				}{ctx.configPath, tools, checks, stats.Entries, stats.TotalBytes, stats.FreeBytes}
				if err := writeJSON(cmd, payload); err != nil {
					return err
				}
				return statusCheckError(tools, checks)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := []string{fmt.Sprintf("Config: %s", ctx.configPath), ""}

			lines = append(lines, renderSectionHeader("Tools", colorize)...)
			for _, status := range tools {
				kind := statusOK
				message := status.Path
				if status.Version != "" {
					message = fmt.Sprintf("%s (%s)", status.Version, status.Path)
				}
				if !status.Available {
					kind = statusError
					if status.Optional {
						kind = statusWarn
					}
					message = fmt.Sprintf("%s not found (optional: %s)", status.Command, yesNo(status.Optional))
				}
				lines = append(lines, renderStatusLine(status.Name, kind, message, colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Directories", colorize)...)
			for _, check := range checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Source cache", colorize)...)
			if statsErr != nil {
				lines = append(lines, renderStatusLine("Usage", statusWarn, statsErr.Error(), colorize))
			} else {
				usage := fmt.Sprintf("%d entries, %s", stats.Entries, humanize.IBytes(uint64(max(stats.TotalBytes, 0))))
				lines = append(lines, renderStatusLine("Usage", statusInfo, usage, colorize))
				if stats.TotalFSBytes > 0 {
					free := fmt.Sprintf("%s of %s", humanize.IBytes(stats.FreeBytes), humanize.IBytes(stats.TotalFSBytes))
					lines = append(lines, renderStatusLine("Free space", statusInfo, free, colorize))
				}
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return statusCheckError(tools, checks)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")
	return cmd
}

// statusCheckError makes status exit non-zero when a required tool or directory
// check failed.
func statusCheckError(tools []deps.Status, checks []preflight.Result) error {
	var problems []string
	for _, m := range deps.Missing(tools) {
		problems = append(problems, m.Name)
	}
	for _, check := range checks {
		if !check.Passed {
			problems = append(problems, check.Name)
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "status", "check", "failed: "+strings.Join(problems, ", "), nil)
}

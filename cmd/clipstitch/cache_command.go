package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipstitch/internal/services"
	"clipstitch/internal/sourcecache"
	"clipstitch/internal/sourceid"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the source cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCachePathCommand(ctx))
	cacheCmd.AddCommand(newCacheRemoveCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show source cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := cacheManager(ctx)
			if err != nil {
				return err
			}
			stats, err := manager.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Root:    %s\n", stats.Root)
			fmt.Fprintf(out, "Entries: %d\n", stats.Entries)
			fmt.Fprintf(out, "Size:    %s\n", humanize.IBytes(uint64(max(stats.TotalBytes, 0))))
			if stats.TotalFSBytes > 0 {
				fmt.Fprintf(out, "Disk:    %s free of %s\n", humanize.IBytes(stats.FreeBytes), humanize.IBytes(stats.TotalFSBytes))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print stats as JSON")
	return cmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached sources, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := cacheManager(ctx)
			if err != nil {
				return err
			}
			entries, err := manager.List()
			if err != nil {
				return err
			}
			if jsonOutput {
				if entries == nil {
					entries = []sourcecache.EntrySummary{}
				}
				return writeJSON(cmd, entries)
			}
			printCacheEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")
	return cmd
}

func printCacheEntries(out io.Writer, entries []sourcecache.EntrySummary) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "Source cache is empty")
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		height := "-"
		if entry.MaxHeight > 0 {
			height = strconv.Itoa(entry.MaxHeight) + "p"
		}
		fetched := entry.FetchedAt
		if fetched.IsZero() {
			fetched = entry.ModifiedAt
		}
		rows = append(rows, []string{
			entry.ID,
			humanize.IBytes(uint64(max(entry.SizeBytes, 0))),
			height,
			humanize.Time(fetched),
			entry.Path,
		})
	}
	headers := []string{"ID", "Size", "Height", "Fetched", "Path"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft}
	fmt.Fprintln(out, renderTable(headers, rows, aligns))
}

func newCachePathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "path URL",
		Short: "Print the cached file for a source reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := cacheManager(ctx)
			if err != nil {
				return err
			}
			id, err := cacheKey(args[0])
			if err != nil {
				return err
			}
			entry, ok := manager.Lookup(id)
			if !ok {
				return services.Wrap(services.ErrNotFound, "cache", "path",
					fmt.Sprintf("%s is not cached (would be stored at %s)", id, manager.Path(id)), nil)
			}
			fmt.Fprintln(cmd.OutOrStdout(), entry.Path)
			return nil
		},
	}
}

func newCacheRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove ID|URL",
		Aliases: []string{"rm"},
		Short:   "Remove a cached source so the next run downloads it again",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := cacheManager(ctx)
			if err != nil {
				return err
			}
			id, err := cacheKey(args[0])
			if err != nil {
				return err
			}
			removed, err := manager.Remove(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was not cached\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from the source cache\n", id)
			return nil
		},
	}
}

// cacheKey accepts a bare identifier or any supported URL form.
func cacheKey(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if sourceid.Valid(arg) {
		return arg, nil
	}
	id, err := sourceid.Extract(arg)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "cache", "resolve", fmt.Sprintf("%q", arg), err)
	}
	return id, nil
}

func cacheManager(ctx *commandContext) (*sourcecache.Manager, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := ctx.logger("cli-cache")
	if err != nil {
		return nil, err
	}
	manager := sourcecache.NewManager(cfg, logger)
	if err := manager.EnsureDir(); err != nil {
		return nil, err
	}
	return manager, nil
}

package preflight

import (
	"context"
	"fmt"
	"strings"

	"clipstitch/internal/config"
	"clipstitch/internal/deps"
	"clipstitch/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll checks every directory clipstitch writes to.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Source cache", cfg.Paths.CacheDir),
		CheckParentAccess("Scratch directory", cfg.Paths.ScratchDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Journal.Enabled {
		results = append(results, CheckParentAccess("Journal", cfg.Paths.JournalPath))
	}
	results = append(results, CheckScratchLock(cfg.Paths.ScratchDir))
	return results
}

// Requirements lists the external programs implied by cfg.
func Requirements(cfg *config.Config) []deps.Requirement {
	return []deps.Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.Fetch.Binary,
			Description: "Required to download sources",
			VersionArgs: []string{"--version"},
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Transcode.FFmpegBinary,
			Description: "Required to cut and merge clips",
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Transcode.FFprobeBinary,
			Description: "Verifies clips and merge compatibility",
			Optional:    !cfg.Transcode.VerifyClips,
			VersionArgs: []string{"-version"},
		},
	}
}

// CheckSystemDeps evaluates the external programs implied by cfg.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(ctx, Requirements(cfg))
}

// RequireTools fails with a configuration error when a required program is
// missing.
func RequireTools(ctx context.Context, cfg *config.Config) error {
	missing := deps.Missing(CheckSystemDeps(ctx, cfg))
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for _, m := range missing {
		names = append(names, fmt.Sprintf("%s (%s)", m.Name, m.Command))
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "check tools",
		"missing required programs: "+strings.Join(names, ", "), nil)
}

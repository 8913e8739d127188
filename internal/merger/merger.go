// Package merger joins extracted clips, in order, into the final output with
// a single stream-copy concat pass.
package merger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipstitch/internal/config"
	"clipstitch/internal/cutter"
	"clipstitch/internal/fileutil"
	"clipstitch/internal/logging"
	"clipstitch/internal/media/ffprobe"
	"clipstitch/internal/services"
)

// ManifestName is the concat list written into the scratch directory.
const ManifestName = "concat.txt"

// ErrNoClips reports a merge request with nothing to merge.
var ErrNoClips = errors.New("no clips to merge")

// MergeError reports a failed merge. The existing output, if any, is untouched.
type MergeError struct {
	Output string
	Err    error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge into %s: %v", e.Output, e.Err)
}

func (e *MergeError) Unwrap() []error {
	return []error{services.ErrExternalTool, e.Err}
}

// Concatenator joins the files listed in a concat manifest.
type Concatenator interface {
	ConcatExact(ctx context.Context, manifest, output string) error
}

// Option configures a Merger.
type Option func(*Merger)

// WithProber enables the stream compatibility check before concatenation.
func WithProber(p ffprobe.Prober) Option {
	return func(m *Merger) {
		m.prober = p
	}
}

// Merger concatenates clips.
type Merger struct {
	tool       Concatenator
	prober     ffprobe.Prober
	scratchDir string
	timeout    time.Duration
	logger     *slog.Logger
}

// New constructs a Merger writing its manifest into cfg.Paths.ScratchDir.
func New(cfg *config.Config, tool Concatenator, logger *slog.Logger, opts ...Option) *Merger {
	m := &Merger{
		tool:       tool,
		scratchDir: cfg.Paths.ScratchDir,
		timeout:    cfg.MergeTimeout(),
		logger:     logging.NewComponentLogger(logger, "merger"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge concatenates clips in slice order into outputPath. The output is
// written to a partial file first and only replaces outputPath on success.
func (m *Merger) Merge(ctx context.Context, clips []cutter.Clip, outputPath string) error {
	if len(clips) == 0 {
		return ErrNoClips
	}
	output, err := filepath.Abs(strings.TrimSpace(outputPath))
	if err != nil || strings.TrimSpace(outputPath) == "" {
		return services.Wrap(services.ErrValidation, "merging", "resolve output", fmt.Sprintf("invalid output path %q", outputPath), err)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return &MergeError{Output: output, Err: fmt.Errorf("create output directory: %w", err)}
	}

	if err := m.checkCompatible(ctx, clips); err != nil {
		return &MergeError{Output: output, Err: err}
	}

	manifest, err := m.writeManifest(clips)
	if err != nil {
		return &MergeError{Output: output, Err: err}
	}

	partial := partialPath(output)
	_ = os.Remove(partial)
	mergeCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		mergeCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	started := time.Now()
	if err := m.tool.ConcatExact(mergeCtx, manifest, partial); err != nil {
		_ = os.Remove(partial)
		return &MergeError{Output: output, Err: services.TimeoutError(ctx, mergeCtx, "merging", "concat", m.timeout, err)}
	}
	info, err := os.Stat(partial)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(partial)
		return &MergeError{Output: output, Err: errors.New("concat produced no output")}
	}
	if err := os.Rename(partial, output); err != nil {
		_ = os.Remove(partial)
		return &MergeError{Output: output, Err: fmt.Errorf("finalize output: %w", err)}
	}

	m.logger.InfoContext(ctx, "clips merged",
		logging.String(logging.FieldEventType, "merge_completed"),
		logging.Int("clips", len(clips)),
		logging.String("output", output),
		logging.Int64("size_bytes", info.Size()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// partialPath keeps the output's extension so ffmpeg can infer the muxer.
func partialPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".partial" + ext
}

func (m *Merger) writeManifest(clips []cutter.Clip) (string, error) {
	if err := os.MkdirAll(m.scratchDir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	content, err := Manifest(clips)
	if err != nil {
		return "", err
	}
	path := filepath.Join(m.scratchDir, ManifestName)
	if err := fileutil.WriteFileAtomic(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write concat manifest: %w", err)
	}
	return path, nil
}

// Manifest renders the concat demuxer list for clips, one absolute path per
// line in order.
func Manifest(clips []cutter.Clip) (string, error) {
	var b strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip.Path)
		if err != nil {
			return "", fmt.Errorf("resolve clip path: %w", err)
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String(), nil
}

func (m *Merger) checkCompatible(ctx context.Context, clips []cutter.Clip) error {
	if m.prober == nil || len(clips) < 2 {
		return nil
	}
	var reference ffprobe.Signature
	for i, clip := range clips {
		result, err := m.prober.Inspect(ctx, clip.Path)
		if err != nil {
			return fmt.Errorf("probe clip %d: %w", clip.Ordinal, err)
		}
		sig := result.StreamSignature()
		if i == 0 {
			reference = sig
			continue
		}
		if diffs := reference.Diff(sig); len(diffs) > 0 {
			return fmt.Errorf("clip %d is incompatible with clip %d: %s", clip.Ordinal, clips[0].Ordinal, strings.Join(diffs, ", "))
		}
	}
	return nil
}

// Package cutter extracts a time range of a cached source into a standalone
// clip. Extraction is a two-step state machine: a lossless stream copy is
// attempted first and a re-encode runs only when the copy fails.
package cutter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipstitch/internal/config"
	"clipstitch/internal/logging"
	"clipstitch/internal/media/ffprobe"
	"clipstitch/internal/services"
	"clipstitch/internal/sourcecache"
	"clipstitch/internal/timecode"
)

// ErrInvalidRange reports a range whose end is not after its start.
var ErrInvalidRange = errors.New("invalid clip range")

// Method records how a clip was produced.
type Method string

const (
	MethodCopy     Method = "copy"
	MethodReencode Method = "reencode"
)

// Clip is an extracted segment in the scratch directory.
type Clip struct {
	Ordinal  int
	SourceID string
	Path     string
	Method   Method
	Duration time.Duration
}

// CutError reports that both extraction attempts failed.
type CutError struct {
	Ordinal  int
	Copy     error
	Reencode error
}

func (e *CutError) Error() string {
	return fmt.Sprintf("cut clip %d: stream copy failed (%v); re-encode failed (%v)", e.Ordinal, e.Copy, e.Reencode)
}

func (e *CutError) Unwrap() []error {
	return []error{services.ErrExternalTool, e.Copy, e.Reencode}
}

// Transcoder performs the two extraction strategies.
type Transcoder interface {
	CopyRange(ctx context.Context, input, output string, start, duration time.Duration) error
	ReencodeRange(ctx context.Context, input, output string, start, duration time.Duration) error
}

// Option configures a Cutter.
type Option func(*Cutter)

// WithProber enables output verification. A stream copy that yields no video
// stream or no duration counts as a failed attempt.
func WithProber(p ffprobe.Prober) Option {
	return func(c *Cutter) {
		c.prober = p
	}
}

// Cutter writes clips into a scratch directory.
type Cutter struct {
	tool       Transcoder
	prober     ffprobe.Prober
	scratchDir string
	timeout    time.Duration
	logger     *slog.Logger
}

// New constructs a Cutter writing into cfg.Paths.ScratchDir.
func New(cfg *config.Config, tool Transcoder, logger *slog.Logger, opts ...Option) *Cutter {
	c := &Cutter{
		tool:       tool,
		scratchDir: cfg.Paths.ScratchDir,
		timeout:    cfg.CutTimeout(),
		logger:     logging.NewComponentLogger(logger, "cutter"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClipPath returns the scratch path for the clip with the given ordinal.
func (c *Cutter) ClipPath(source sourcecache.Entry, ordinal int) string {
	ext := filepath.Ext(source.Path)
	if ext == "" {
		ext = ".mp4"
	}
	return filepath.Join(c.scratchDir, fmt.Sprintf("clip-%04d%s", ordinal, ext))
}

// Cut extracts [start, end) of source into a new clip.
func (c *Cutter) Cut(ctx context.Context, source sourcecache.Entry, ordinal int, start, end timecode.Timecode) (Clip, error) {
	duration := timecode.Span(start, end)
	if duration <= 0 {
		return Clip{}, fmt.Errorf("%w: %s-%s", ErrInvalidRange, start, end)
	}
	if err := os.MkdirAll(c.scratchDir, 0o755); err != nil {
		return Clip{}, services.Wrap(services.ErrConfiguration, "cutting", "prepare scratch", "cannot create scratch directory", err)
	}

	output := c.ClipPath(source, ordinal)
	clip := Clip{Ordinal: ordinal, SourceID: source.ID, Path: output, Duration: duration}
	logger := c.logger.With(
		logging.Int(logging.FieldRequestIndex, ordinal),
		logging.String(logging.FieldSourceID, source.ID),
	)

	copyErr := c.tryCopy(ctx, source.Path, output, start.Duration(), duration)
	if copyErr == nil {
		clip.Method = MethodCopy
		logger.DebugContext(ctx, "clip extracted by stream copy", logging.String("path", output))
		return clip, nil
	}
	logging.WarnWithContext(logger, "stream copy failed; re-encoding", "cut_fallback",
		logging.Error(copyErr),
		logging.String(logging.FieldImpact, "clip is re-encoded, which is slower and lossy"),
		logging.String(logging.FieldErrorHint, "source keyframes or codecs may not suit stream copy"),
	)

	reencodeErr := c.tryReencode(ctx, source.Path, output, start.Duration(), duration)
	if reencodeErr == nil {
		clip.Method = MethodReencode
		logger.InfoContext(ctx, "clip extracted by re-encode",
			logging.String(logging.FieldEventType, "clip_reencoded"),
			logging.String("path", output),
		)
		return clip, nil
	}
	return Clip{}, &CutError{Ordinal: ordinal, Copy: copyErr, Reencode: reencodeErr}
}

func (c *Cutter) tryCopy(ctx context.Context, input, output string, start, duration time.Duration) error {
	return c.attempt(ctx, output, func(ctx context.Context) error {
		return c.tool.CopyRange(ctx, input, output, start, duration)
	})
}

func (c *Cutter) tryReencode(ctx context.Context, input, output string, start, duration time.Duration) error {
	return c.attempt(ctx, output, func(ctx context.Context) error {
		return c.tool.ReencodeRange(ctx, input, output, start, duration)
	})
}

// attempt runs one extraction under the per-attempt timeout and removes any
// partial output on failure.
func (c *Cutter) attempt(ctx context.Context, output string, run func(context.Context) error) error {
	_ = os.Remove(output)
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	err := run(attemptCtx)
	if err == nil {
		err = c.verify(attemptCtx, output)
	}
	if err != nil {
		_ = os.Remove(output)
		return services.TimeoutError(ctx, attemptCtx, "cutting", "extract", c.timeout, err)
	}
	return nil
}

func (c *Cutter) verify(ctx context.Context, output string) error {
	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("clip output missing: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("clip output is empty")
	}
	if c.prober == nil {
		return nil
	}
	result, err := c.prober.Inspect(ctx, output)
	if err != nil {
		return fmt.Errorf("verify clip: %w", err)
	}
	if result.VideoStreamCount() == 0 {
		return errors.New("verify clip: no video stream")
	}
	if seconds := result.DurationSeconds(); seconds <= 0 || math.IsNaN(seconds) {
		return fmt.Errorf("verify clip: unusable duration %q", strings.TrimSpace(result.Format.Duration))
	}
	return nil
}

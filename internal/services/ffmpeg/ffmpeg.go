// Package ffmpeg wraps the ffmpeg invocations used to extract and concatenate
// clips: stream-copy range extraction, default re-encode extraction, and a
// single-pass concat-demuxer merge.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandRunner executes an external command. Tests replace it to avoid
// spawning ffmpeg.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Option configures the client.
type Option func(*Client)

// WithCommandRunner allows injecting a custom command runner for tests.
func WithCommandRunner(r CommandRunner) Option {
	return func(c *Client) {
		if r != nil {
			c.run = r
		}
	}
}

// Client drives ffmpeg.
type Client struct {
	binary string
	run    CommandRunner
}

// New constructs an ffmpeg client. An empty binary defaults to "ffmpeg".
func New(binary string, opts ...Option) *Client {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	c := &Client{binary: binary, run: defaultCommandRunner}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Binary reports the configured executable.
func (c *Client) Binary() string {
	return c.binary
}

// CopyRange extracts [start, start+duration) from input without re-encoding.
func (c *Client) CopyRange(ctx context.Context, input, output string, start, duration time.Duration) error {
	if err := validateRange(input, output, duration); err != nil {
		return err
	}
	return c.run(ctx, c.binary, CopyRangeArgs(input, output, start, duration)...)
}

// ReencodeRange extracts [start, start+duration) from input using the
// container's default encoders.
func (c *Client) ReencodeRange(ctx context.Context, input, output string, start, duration time.Duration) error {
	if err := validateRange(input, output, duration); err != nil {
		return err
	}
	return c.run(ctx, c.binary, ReencodeRangeArgs(input, output, start, duration)...)
}

// ConcatExact joins the files listed in manifest, in listed order, into output
// with stream copy.
func (c *Client) ConcatExact(ctx context.Context, manifest, output string) error {
	if strings.TrimSpace(manifest) == "" {
		return errors.New("concat manifest path required")
	}
	if strings.TrimSpace(output) == "" {
		return errors.New("output path required")
	}
	return c.run(ctx, c.binary, ConcatArgs(manifest, output)...)
}

// CopyRangeArgs builds the stream-copy extraction command line.
func CopyRangeArgs(input, output string, start, duration time.Duration) []string {
	args := baseArgs()
	args = append(args,
		"-ss", FormatSeconds(start),
		"-i", input,
		"-t", FormatSeconds(duration),
		"-map", "0:v?",
		"-map", "0:a?",
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		output,
	)
	return args
}

// ReencodeRangeArgs builds the re-encode extraction command line. Codec choice
// is left to ffmpeg's defaults for the output container.
func ReencodeRangeArgs(input, output string, start, duration time.Duration) []string {
	args := baseArgs()
	args = append(args,
		"-ss", FormatSeconds(start),
		"-i", input,
		"-t", FormatSeconds(duration),
		"-map", "0:v?",
		"-map", "0:a?",
		output,
	)
	return args
}

// ConcatArgs builds the concat-demuxer command line.
func ConcatArgs(manifest, output string) []string {
	args := baseArgs()
	args = append(args,
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-map", "0",
		"-c", "copy",
		output,
	)
	return args
}

// FormatSeconds renders a duration as decimal seconds for ffmpeg arguments.
func FormatSeconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y"}
}

func validateRange(input, output string, duration time.Duration) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("input path required")
	}
	if strings.TrimSpace(output) == "" {
		return errors.New("output path required")
	}
	if duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", duration)
	}
	return nil
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, lastLines(string(output), 5))
	}
	return nil
}

func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}

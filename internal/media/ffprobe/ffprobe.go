package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index         int    `json:"index"`
	CodecName     string `json:"codec_name"`
	CodecType     string `json:"codec_type"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	PixelFormat   string `json:"pix_fmt"`
	SampleRate    string `json:"sample_rate"`
	Channels      int    `json:"channels"`
	ChannelLayout string `json:"channel_layout"`
	Duration      string `json:"duration"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// OutputRunner executes a command and returns its stdout.
type OutputRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Prober inspects media files.
type Prober interface {
	Inspect(ctx context.Context, path string) (Result, error)
}

// Client runs the ffprobe binary.
type Client struct {
	binary string
	run    OutputRunner
}

// New constructs an ffprobe client. A nil runner executes the binary directly.
func New(binary string, run OutputRunner) *Client {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if run == nil {
		run = defaultOutputRunner
	}
	return &Client{binary: binary, run: run}
}

// Inspect executes ffprobe against path and decodes the JSON response.
func (c *Client) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}
	output, err := c.run(ctx, c.binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

func defaultOutputRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return output, nil
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countType("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countType("audio")
}

func (r Result) countType(codecType string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, 0 when absent
// and NaN when unparseable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// FirstStream returns the first stream of codecType.
func (r Result) FirstStream(codecType string) (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			return stream, true
		}
	}
	return Stream{}, false
}

// Signature holds the stream parameters that must agree for a stream-copy concat.
type Signature struct {
	VideoCodec  string
	Width       int
	Height      int
	PixelFormat string
	AudioCodec  string
	SampleRate  string
	Channels    int
}

// StreamSignature summarises the first video and audio stream.
func (r Result) StreamSignature() Signature {
	var sig Signature
	if v, ok := r.FirstStream("video"); ok {
		sig.VideoCodec = v.CodecName
		sig.Width = v.Width
		sig.Height = v.Height
		sig.PixelFormat = v.PixelFormat
	}
	if a, ok := r.FirstStream("audio"); ok {
		sig.AudioCodec = a.CodecName
		sig.SampleRate = a.SampleRate
		sig.Channels = a.Channels
	}
	return sig
}

// Diff lists the fields on which s and other disagree.
func (s Signature) Diff(other Signature) []string {
	var diffs []string
	add := func(field string, a, b any) {
		if a != b {
			diffs = append(diffs, fmt.Sprintf("%s %v != %v", field, a, b))
		}
	}
	add("video_codec", s.VideoCodec, other.VideoCodec)
	add("width", s.Width, other.Width)
	add("height", s.Height, other.Height)
	add("pix_fmt", s.PixelFormat, other.PixelFormat)
	add("audio_codec", s.AudioCodec, other.AudioCodec)
	add("sample_rate", s.SampleRate, other.SampleRate)
	add("channels", s.Channels, other.Channels)
	return diffs
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

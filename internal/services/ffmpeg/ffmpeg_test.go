package ffmpeg

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

type recordedCall struct {
	name string
	args []string
}

func recordingRunner(calls *[]recordedCall, err error) CommandRunner {
	return func(ctx context.Context, name string, args ...string) error {
		*calls = append(*calls, recordedCall{name: name, args: append([]string(nil), args...)})
		return err
	}
}

func TestCopyRangeArgs(t *testing.T) {
	var calls []recordedCall
	client := New("/usr/bin/ffmpeg", WithCommandRunner(recordingRunner(&calls, nil)))

	if err := client.CopyRange(context.Background(), "in.mp4", "out.mp4", 90*time.Second, 30*time.Second); err != nil {
		t.Fatalf("CopyRange: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one invocation, got %d", len(calls))
	}
	call := calls[0]
	if call.name != "/usr/bin/ffmpeg" {
		t.Fatalf("unexpected binary %q", call.name)
	}
	want := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-ss", "90.000", "-i", "in.mp4", "-t", "30.000",
		"-map", "0:v?", "-map", "0:a?",
		"-c", "copy", "-avoid_negative_ts", "make_zero",
		"out.mp4",
	}
	if !slices.Equal(call.args, want) {
		t.Fatalf("unexpected args:\n got %v\nwant %v", call.args, want)
	}
}

func TestReencodeRangeUsesSameWindowWithoutCopy(t *testing.T) {
	var calls []recordedCall
	client := New("", WithCommandRunner(recordingRunner(&calls, nil)))

	if err := client.ReencodeRange(context.Background(), "in.mp4", "out.mp4", 5*time.Second, 12*time.Second); err != nil {
		t.Fatalf("ReencodeRange: %v", err)
	}
	args := calls[0].args
	if calls[0].name != "ffmpeg" {
		t.Fatalf("expected default binary, got %q", calls[0].name)
	}
	if slices.Contains(args, "copy") {
		t.Fatalf("re-encode must not request stream copy: %v", args)
	}
	if i := slices.Index(args, "-ss"); i < 0 || args[i+1] != "5.000" {
		t.Fatalf("unexpected start in %v", args)
	}
	if i := slices.Index(args, "-t"); i < 0 || args[i+1] != "12.000" {
		t.Fatalf("unexpected duration in %v", args)
	}
}

func TestRangeRejectsNonPositiveDuration(t *testing.T) {
	var calls []recordedCall
	client := New("ffmpeg", WithCommandRunner(recordingRunner(&calls, nil)))
	if err := client.CopyRange(context.Background(), "in.mp4", "out.mp4", time.Second, 0); err == nil {
		t.Fatal("expected error for zero duration")
	}
	if len(calls) != 0 {
		t.Fatalf("expected no invocation, got %d", len(calls))
	}
}

func TestConcatArgsAndErrorPropagation(t *testing.T) {
	var calls []recordedCall
	boom := errors.New("exit status 1")
	client := New("ffmpeg", WithCommandRunner(recordingRunner(&calls, boom)))

	err := client.ConcatExact(context.Background(), "/scratch/concat.txt", "/out/final.mp4")
	if !errors.Is(err, boom) {
		t.Fatalf("expected runner error, got %v", err)
	}
	args := calls[0].args
	if i := slices.Index(args, "-f"); i < 0 || args[i+1] != "concat" {
		t.Fatalf("expected concat demuxer in %v", args)
	}
	if i := slices.Index(args, "-safe"); i < 0 || args[i+1] != "0" {
		t.Fatalf("expected -safe 0 in %v", args)
	}
	if args[len(args)-1] != "/out/final.mp4" {
		t.Fatalf("expected output last, got %v", args)
	}
}

func TestLastLinesTrimsOutput(t *testing.T) {
	got := lastLines("a\nb\nc\nd\n", 2)
	if got != "c | d" {
		t.Fatalf("lastLines = %q", got)
	}
}

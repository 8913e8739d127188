package ytdlp

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestForwardLinesSerialisesCallbacks(t *testing.T) {
	const perStream = 200
	stdout := strings.NewReader(strings.Repeat("[download]  10.0% of 5MiB\n", perStream))
	stderr := strings.NewReader(strings.Repeat("[download]  20.0% of 5MiB\n", perStream))

	var active, overlaps, lines atomic.Int32
	err := forwardLines(func(string) {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(10 * time.Microsecond)
		lines.Add(1)
		active.Add(-1)
	}, stdout, stderr)
	if err != nil {
		t.Fatalf("forwardLines: %v", err)
	}
	if overlaps.Load() != 0 {
		t.Fatalf("callbacks overlapped %d times", overlaps.Load())
	}
	if lines.Load() != 2*perStream {
		t.Fatalf("expected %d lines, got %d", 2*perStream, lines.Load())
	}
}

func TestForwardLinesToleratesNilCallback(t *testing.T) {
	if err := forwardLines(nil, strings.NewReader("a\nb\n")); err != nil {
		t.Fatalf("forwardLines: %v", err)
	}
}

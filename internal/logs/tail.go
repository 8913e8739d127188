package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"clipstitch/internal/logging"
)

const (
	maxLineBytes = 1024 * 1024
	pollInterval = 250 * time.Millisecond
)

// RunLogPath returns the log file OpenRunLog creates for runID under logDir.
func RunLogPath(logDir, runID string) string {
	return filepath.Join(logDir, logging.RunLogFileName(runID))
}

// Last returns up to limit trailing lines of path and the offset of the end of
// the file. A missing file yields no lines and offset 0. A limit <= 0 returns
// every line.
func Last(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if info, err := file.Stat(); err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	} else if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}

	var lines []string
	var ring []string
	next := 0
	if limit > 0 {
		ring = make([]string, 0, limit)
	}
	offset, err := scanLines(file, func(line string) {
		switch {
		case limit <= 0:
			lines = append(lines, line)
		case len(ring) < limit:
			ring = append(ring, line)
		default:
			ring[next] = line
			next = (next + 1) % limit
		}
	})
	if err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		lines = append(ring[next:], ring[:next]...)
	}
	return lines, offset, nil
}

// Follow reads complete lines appended to path after offset and passes them
// to emit until ctx is done. The file may not exist yet when Follow starts.
func Follow(ctx context.Context, path string, offset int64, emit func(string)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		next, err := readFrom(path, offset, emit)
		if err != nil {
			return err
		}
		offset = next
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return offset, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = info.Size()
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// Partial trailing line; reread it once the writer finishes it.
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		emit(line[:len(line)-1])
	}
}

func scanLines(file *os.File, fn func(string)) (int64, error) {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	return offset, nil
}

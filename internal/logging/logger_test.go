package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipstitch/internal/config"
	"clipstitch/internal/logging"
	"clipstitch/internal/services"
)

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger instance")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersRequestSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "subject.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithStage(services.WithRequestIndex(context.Background(), 3), "cutting")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "pipeline")).Info("clip produced", logging.String("method", "copy"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"INFO [pipeline] Request #3 (cutting)", "clip produced", "method=copy"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, "request_index=") {
		t.Fatalf("expected request_index folded into header, got %q", line)
	}
}

func TestConsoleLoggerFoldsSourceIntoHeader(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "source.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithSourceID(services.WithRequestIndex(context.Background(), 2), "dQw4w9WgXcQ")
	ctx = services.WithStage(ctx, "fetching")
	logging.WithContext(ctx, logger).Info("download started")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "Request #2 dQw4w9WgXcQ (fetching)") {
		t.Fatalf("expected source in header, got %q", line)
	}
	if strings.Contains(line, "source_id=") {
		t.Fatalf("expected source_id folded into header, got %q", line)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-xyz")
	ctx = services.WithRequestIndex(ctx, 7)
	ctx = services.WithStage(ctx, "fetching")
	ctx = services.WithSourceID(ctx, "dQw4w9WgXcQ")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	want := map[string]any{
		logging.FieldRunID:        "run-xyz",
		logging.FieldRequestIndex: float64(7),
		logging.FieldStage:        "fetching",
		logging.FieldSourceID:     "dQw4w9WgXcQ",
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("field %s = %v, want %v", key, record[key], value)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "request skipped", "request_skipped", logging.String(logging.FieldImpact, "clip omitted"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record[logging.FieldEventType] != "request_skipped" {
		t.Fatalf("unexpected event_type %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] == nil {
		t.Fatal("expected default error_hint")
	}
	if record[logging.FieldImpact] != "clip omitted" {
		t.Fatalf("expected caller impact preserved, got %v", record[logging.FieldImpact])
	}
}

func TestOpenRunLogWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	base := slog.New(slog.NewTextHandler(&console, &slog.HandlerOptions{Level: slog.LevelInfo}))

	runLog, err := logging.OpenRunLog(base, dir, "abc123")
	if err != nil {
		t.Fatalf("OpenRunLog: %v", err)
	}
	runLog.Logger.Debug("debug detail")
	runLog.Logger.Info("run started")
	if err := runLog.Close(); err != nil {
		t.Fatalf("close run log: %v", err)
	}

	if runLog.Path != filepath.Join(dir, "clipstitch-abc123.log") {
		t.Fatalf("unexpected run log path %q", runLog.Path)
	}
	data, err := os.ReadFile(runLog.Path)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(data), "debug detail") || !strings.Contains(string(data), "run started") {
		t.Fatalf("expected both records in run log, got %q", data)
	}
	if strings.Contains(console.String(), "debug detail") {
		t.Fatal("expected console to keep its own level")
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "clipstitch-old.log")
	current := filepath.Join(dir, "clipstitch-current.log")
	fresh := filepath.Join(dir, "clipstitch-fresh.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, current, fresh, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, current, other} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 5, logging.RetentionTarget{Dir: dir, Exclude: []string{current}})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, err=%v", err)
	}
	for _, path := range []string{current, fresh, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}

	if removed := logging.CleanupOldLogs(nil, 0, logging.RetentionTarget{Dir: dir}); removed != 0 {
		t.Fatalf("expected retention 0 to disable pruning, removed %d", removed)
	}
}

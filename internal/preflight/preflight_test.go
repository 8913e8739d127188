package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"clipstitch/internal/services"
	"clipstitch/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckParentAccess(t *testing.T) {
	base := t.TempDir()
	if result := CheckParentAccess("journal", filepath.Join(base, "journal.db")); !result.Passed {
		t.Fatalf("expected pass when parent exists, got %s", result.Detail)
	}
	if result := CheckParentAccess("journal", filepath.Join(base, "missing", "journal.db")); result.Passed {
		t.Fatal("expected failure when parent is missing")
	}
}

func TestCheckScratchLock(t *testing.T) {
	scratch := filepath.Join(t.TempDir(), "scratch")
	if result := CheckScratchLock(scratch); !result.Passed {
		t.Fatalf("expected idle without lock file, got %s", result.Detail)
	}

	lock := flock.New(scratch + ".lock")
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock ok=%v err=%v", ok, err)
	}
	if result := CheckScratchLock(scratch); result.Passed {
		t.Fatal("expected busy while another holder has the lock")
	}
	if err := lock.Unlock(); err != nil {
		t.Fatal(err)
	}
	if result := CheckScratchLock(scratch); !result.Passed {
		t.Fatalf("expected idle after unlock, got %s", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_AfterEnsureDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJournal(true))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := RunAll(cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestRequireTools(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := RequireTools(context.Background(), cfg); err != nil {
		t.Fatalf("expected stubbed tools to satisfy preflight, got %v", err)
	}

	cfg.Transcode.FFmpegBinary = "clearly-not-present-ffmpeg"
	err := RequireTools(context.Background(), cfg)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRequirementsMakeFFprobeOptionalWithoutVerification(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcode.VerifyClips = false
	for _, req := range Requirements(cfg) {
		if req.Name == "FFprobe" && !req.Optional {
			t.Fatal("expected ffprobe optional when verification is off")
		}
	}
}

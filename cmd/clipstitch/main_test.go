package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"clipstitch/internal/config"
	"clipstitch/internal/journal"
	"clipstitch/internal/pipeline"
	"clipstitch/internal/services"
	"clipstitch/internal/services/ffmpeg"
	"clipstitch/internal/testsupport"
)

const (
	idA = "aaaaaaaaaaa"
	idB = "bbbbbbbbbbb"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	downloader *testsupport.FakeDownloader
	ffmpeg     *testsupport.FakeFFmpeg
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithStubbedBinaries()}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "clipstitch.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		baseDir:    base,
		downloader: &testsupport.FakeDownloader{Fail: map[string]error{}},
		ffmpeg:     &testsupport.FakeFFmpeg{},
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) tools() pipeline.Tools {
	return pipeline.Tools{
		Downloader: e.downloader,
		FFmpeg:     ffmpeg.New("ffmpeg", ffmpeg.WithCommandRunner(e.ffmpeg.Runner())),
	}
}

func (e *cliTestEnv) runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommandWithTools(e.tools())
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--env-file", e.envFile(t)}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) envFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(e.baseDir, "test.env")
	if _, err := os.Stat(path); err != nil {
		if err := os.WriteFile(path, []byte("# clipstitch test env\n"), 0o644); err != nil {
			t.Fatalf("write env file: %v", err)
		}
	}
	return path
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func TestRunCommandStitchesClips(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithJournal(true))
	taskFile := testsupport.WriteTasks(t, env.baseDir,
		testsupport.Task{URL: watchURL(idA), StartTime: "00:00:05", EndTime: "00:00:10"},
		testsupport.Task{URL: "https://youtu.be/" + idB, StartTime: "00:01:00", EndTime: "00:01:30"},
		testsupport.Task{URL: watchURL(idA), StartTime: "00:00:20", EndTime: "00:00:25"},
	)
	output := filepath.Join(env.baseDir, "out", "final.mp4")

	stdout, _, err := env.runCLI(t, "run", taskFile, "-o", output)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout, "Wrote "+output+" from 3 clips") {
		t.Fatalf("unexpected run output: %q", stdout)
	}
	if calls := env.downloader.Calls(); len(calls) != 2 {
		t.Fatalf("expected one download per distinct source, got %v", calls)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || !strings.Contains(lines[0], idA) || !strings.Contains(lines[1], idB) || !strings.Contains(lines[2], "@20.000") {
		t.Fatalf("clips merged out of order: %q", lines)
	}

	logs, err := filepath.Glob(filepath.Join(env.cfg.Paths.LogDir, "clipstitch-*.log"))
	if err != nil || len(logs) != 1 {
		t.Fatalf("expected one run log, got %v (err=%v)", logs, err)
	}

	stdout, _, err = env.runCLI(t, "history", "--json")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var runs []journal.Run
	if err := json.Unmarshal([]byte(stdout), &runs); err != nil {
		t.Fatalf("decode history: %v\n%s", err, stdout)
	}
	if len(runs) != 1 || runs[0].Status != journal.RunCompleted || runs[0].Produced != 3 {
		t.Fatalf("unexpected history: %+v", runs)
	}

	stdout, _, err = env.runCLI(t, "history", "show", runs[0].ID)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	if !strings.Contains(stdout, "3 produced, 0 skipped of 3") {
		t.Fatalf("unexpected history detail: %q", stdout)
	}
}

func TestRunCommandJSONReportsSkips(t *testing.T) {
	env := setupCLITestEnv(t)
	env.downloader.Fail[idB] = errors.New("video unavailable")
	taskFile := testsupport.WriteTasks(t, env.baseDir,
		testsupport.Task{URL: watchURL(idA), StartTime: "00:00:05", EndTime: "00:00:10"},
		testsupport.Task{URL: watchURL(idB), StartTime: "00:00:05", EndTime: "00:00:10"},
		testsupport.Task{URL: "not a url", StartTime: "00:00:05", EndTime: "00:00:10"},
	)
	output := filepath.Join(env.baseDir, "final.mp4")

	stdout, _, err := env.runCLI(t, "run", taskFile, "-o", output, "--json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var report runReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout)
	}
	if report.ProducedClipCount != 1 || report.SkippedCount != 2 || !report.OutputWritten {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(report.Outcomes))
	}
	if report.Outcomes[1].Reason != pipeline.ReasonDownloadError || report.Outcomes[1].Message == "" {
		t.Fatalf("expected download error with message, got %+v", report.Outcomes[1])
	}
	if report.Outcomes[2].Reason != pipeline.ReasonInvalidReference {
		t.Fatalf("expected invalid reference, got %+v", report.Outcomes[2])
	}
}

func TestRunCommandEmptyResultSucceeds(t *testing.T) {
	env := setupCLITestEnv(t)
	taskFile := testsupport.WriteTasks(t, env.baseDir,
		testsupport.Task{URL: watchURL(idA), StartTime: "00:00:10", EndTime: "00:00:05"},
	)
	output := filepath.Join(env.baseDir, "final.mp4")

	stdout, _, err := env.runCLI(t, "run", taskFile, "-o", output)
	if err != nil {
		t.Fatalf("expected empty run to succeed, got %v", err)
	}
	if !strings.Contains(stdout, "No clips produced (1 skipped)") {
		t.Fatalf("unexpected output: %q", stdout)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Fatalf("expected no output file, stat err=%v", err)
	}
	if len(env.downloader.Calls()) != 0 {
		t.Fatal("invalid range must not trigger a download")
	}
}

func TestRunCommandRejectsInvalidTaskFile(t *testing.T) {
	env := setupCLITestEnv(t)
	taskFile := filepath.Join(env.baseDir, "tasks.json")
	if err := os.WriteFile(taskFile, []byte(`{"url": "x"}`), 0o644); err != nil {
		t.Fatalf("write tasks: %v", err)
	}

	_, _, err := env.runCLI(t, "run", taskFile, "-o", filepath.Join(env.baseDir, "final.mp4"))
	if err == nil {
		t.Fatal("expected invalid task file to fail")
	}
	if services.ExitCode(err) != services.ExitUsage {
		t.Fatalf("expected usage exit code, got %d (%v)", services.ExitCode(err), err)
	}
}

func TestRunCommandRequiresOutput(t *testing.T) {
	env := setupCLITestEnv(t)
	taskFile := testsupport.WriteTasks(t, env.baseDir)

	_, _, err := env.runCLI(t, "run", taskFile)
	if err == nil || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunCommandMergeFailureExitsNonZero(t *testing.T) {
	env := setupCLITestEnv(t)
	env.ffmpeg.FailConcat = true
	taskFile := testsupport.WriteTasks(t, env.baseDir,
		testsupport.Task{URL: watchURL(idA), StartTime: "00:00:05", EndTime: "00:00:10"},
	)
	output := filepath.Join(env.baseDir, "final.mp4")

	stdout, _, err := env.runCLI(t, "run", taskFile, "-o", output)
	if err == nil {
		t.Fatal("expected merge failure")
	}
	if services.ExitCode(err) != services.ExitFailure {
		t.Fatalf("expected failure exit code, got %d", services.ExitCode(err))
	}
	if !strings.Contains(stdout, "was not written") {
		t.Fatalf("expected report to note missing output, got %q", stdout)
	}
}

func TestCacheCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	taskFile := testsupport.WriteTasks(t, env.baseDir,
		testsupport.Task{URL: watchURL(idA), StartTime: "00:00:05", EndTime: "00:00:10"},
	)
	if _, _, err := env.runCLI(t, "run", taskFile, "-o", filepath.Join(env.baseDir, "final.mp4")); err != nil {
		t.Fatalf("run: %v", err)
	}

	stdout, _, err := env.runCLI(t, "cache", "list")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	if !strings.Contains(stdout, idA) {
		t.Fatalf("cache list missing entry: %q", stdout)
	}

	stdout, _, err = env.runCLI(t, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	if !strings.Contains(stdout, "Entries: 1") {
		t.Fatalf("unexpected stats: %q", stdout)
	}

	stdout, _, err = env.runCLI(t, "cache", "path", watchURL(idA))
	if err != nil {
		t.Fatalf("cache path: %v", err)
	}
	want := filepath.Join(env.cfg.Paths.CacheDir, idA+".mp4")
	if strings.TrimSpace(stdout) != want {
		t.Fatalf("cache path = %q, want %q", strings.TrimSpace(stdout), want)
	}

	stdout, _, err = env.runCLI(t, "cache", "remove", idA)
	if err != nil {
		t.Fatalf("cache remove: %v", err)
	}
	if !strings.Contains(stdout, "Removed "+idA) {
		t.Fatalf("unexpected remove output: %q", stdout)
	}

	_, _, err = env.runCLI(t, "cache", "path", idA)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after removal, got %v", err)
	}

	_, _, err = env.runCLI(t, "cache", "remove", "https://example.com/nothing")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unusable reference, got %v", err)
	}
}

func TestHistoryDisabledJournal(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithJournal(false))
	stdout, _, err := env.runCLI(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(stdout, "Run journal is disabled") {
		t.Fatalf("unexpected output: %q", stdout)
	}
}

func TestHistoryShowUnknownRun(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithJournal(true))
	_, _, err := env.runCLI(t, "history", "show", "missing-run")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStatusCommandReportsTools(t *testing.T) {
	env := setupCLITestEnv(t)
	stdout, _, err := env.runCLI(t, "status")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, stdout)
	}
	for _, want := range []string{"== Tools ==", "yt-dlp", "FFmpeg", "== Directories ==", "Source cache", "0 entries"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("status output missing %q: %q", want, stdout)
		}
	}
}

func TestStatusCommandFailsWhenToolMissing(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Fetch.Binary = "clipstitch-missing-yt-dlp"
	writeTestConfig(t, env.configPath, env.cfg)

	stdout, _, err := env.runCLI(t, "status")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(stdout, "clipstitch-missing-yt-dlp not found") {
		t.Fatalf("expected missing tool in output: %q", stdout)
	}
}

func TestEnvFileFeedsConfiguration(t *testing.T) {
	env := setupCLITestEnv(t)
	envFile := filepath.Join(env.baseDir, "custom.env")
	if err := os.WriteFile(envFile, []byte("CLIPSTITCH_YTDLP=/opt/env/yt-dlp\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CLIPSTITCH_YTDLP", "")
	os.Unsetenv("CLIPSTITCH_YTDLP")

	cmd := newRootCommandWithTools(env.tools())
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", env.configPath, "--env-file", envFile, "status"})
	_ = cmd.Execute()
	if !strings.Contains(stdout.String(), "/opt/env/yt-dlp not found") {
		t.Fatalf("expected env file binary to be checked, got %q", stdout.String())
	}
}

func TestMissingEnvFileIsAnError(t *testing.T) {
	env := setupCLITestEnv(t)
	cmd := newRootCommandWithTools(env.tools())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", env.configPath, "--env-file", filepath.Join(env.baseDir, "absent.env"), "status"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected explicit missing env file to fail")
	}
}

func TestInvalidConfigExitsWithUsageCode(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.WriteFile(env.configPath, []byte("[fetch]\nmax_height = 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := env.runCLI(t, "cache", "list")
	if err == nil {
		t.Fatal("expected invalid config to fail")
	}
	if services.ExitCode(err) != services.ExitUsage {
		t.Fatalf("expected usage exit code, got %d", services.ExitCode(err))
	}
}

func TestHistoryLogPrintsRunLog(t *testing.T) {
	env := setupCLITestEnv(t)
	taskFile := testsupport.WriteTasks(t, env.baseDir,
		testsupport.Task{URL: watchURL(idA), StartTime: "00:00:05", EndTime: "00:00:10"},
	)
	stdout, _, err := env.runCLI(t, "run", taskFile, "-o", filepath.Join(env.baseDir, "final.mp4"), "--json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var report runReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}

	stdout, _, err = env.runCLI(t, "history", "log", report.RunID, "--lines", "0")
	if err != nil {
		t.Fatalf("history log: %v", err)
	}
	if !strings.Contains(stdout, "run_completed") {
		t.Fatalf("expected run log lines, got %q", stdout)
	}

	_, _, err = env.runCLI(t, "history", "log", "missing-run")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

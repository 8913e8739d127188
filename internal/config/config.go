package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains on-disk locations owned by clipstitch.
type Paths struct {
	CacheDir    string `toml:"cache_dir"`
	ScratchDir  string `toml:"scratch_dir"`
	LogDir      string `toml:"log_dir"`
	JournalPath string `toml:"journal_path"`
}

// Fetch configures source retrieval through yt-dlp.
type Fetch struct {
	Binary          string `toml:"binary"`
	MaxHeight       int    `toml:"max_height"`
	Container       string `toml:"container"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	PrefetchWorkers int    `toml:"prefetch_workers"`
	CookiesFile     string `toml:"cookies_file"`
}

// Transcode configures the ffmpeg/ffprobe tooling used to cut and merge clips.
type Transcode struct {
	FFmpegBinary        string `toml:"ffmpeg_binary"`
	FFprobeBinary       string `toml:"ffprobe_binary"`
	CutTimeoutSeconds   int    `toml:"cut_timeout_seconds"`
	MergeTimeoutSeconds int    `toml:"merge_timeout_seconds"`
	VerifyClips         bool   `toml:"verify_clips"`
}

// Pipeline contains run-level behaviour switches.
type Pipeline struct {
	// RetainScratch keeps intermediate clips and the concat manifest after a run.
	RetainScratch bool `toml:"retain_scratch"`
}

// Journal toggles the SQLite run history.
type Journal struct {
	Enabled bool `toml:"enabled"`
	// KeepRuns bounds how many runs history retains; 0 keeps every run.
	KeepRuns int `toml:"keep_runs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for clipstitch.
//
// Configuration sections by subsystem:
//   - Paths: source cache, scratch, logs and journal database
//   - Fetch: yt-dlp binary and resolution preference
//   - Transcode: ffmpeg/ffprobe binaries and timeouts
//   - Pipeline: scratch retention
//   - Journal: run history
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Fetch     Fetch     `toml:"fetch"`
	Transcode Transcode `toml:"transcode"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Journal   Journal   `toml:"journal"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipstitch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the cache, scratch parent, and log directories.
// The scratch directory itself is owned by the pipeline for the duration of a run.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.CacheDir, filepath.Dir(c.Paths.ScratchDir), c.Paths.LogDir}
	if c.Journal.Enabled && strings.TrimSpace(c.Paths.JournalPath) != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.JournalPath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FetchTimeout returns the per-download deadline.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// CutTimeout returns the per-clip extraction deadline, applied to each attempt.
func (c *Config) CutTimeout() time.Duration {
	return time.Duration(c.Transcode.CutTimeoutSeconds) * time.Second
}

// MergeTimeout returns the deadline for the single concat pass.
func (c *Config) MergeTimeout() time.Duration {
	return time.Duration(c.Transcode.MergeTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "clipstitch", "sources")
	}
	return "~/.cache/clipstitch/sources"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeFetch(); err != nil {
		return err
	}
	c.normalizeTranscode()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("CLIPSTITCH_CACHE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.CacheDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if strings.TrimSpace(c.Paths.JournalPath) == "" {
		c.Paths.JournalPath = defaultJournalPath
	}

	var err error
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.JournalPath, err = expandPath(c.Paths.JournalPath); err != nil {
		return fmt.Errorf("paths.journal_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeFetch() error {
	c.Fetch.Binary = strings.TrimSpace(c.Fetch.Binary)
	if value, ok := os.LookupEnv("CLIPSTITCH_YTDLP"); ok && strings.TrimSpace(value) != "" {
		c.Fetch.Binary = strings.TrimSpace(value)
	}
	if c.Fetch.Binary == "" {
		c.Fetch.Binary = defaultFetchBinary
	}
	c.Fetch.Container = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Fetch.Container), "."))
	if c.Fetch.Container == "" {
		c.Fetch.Container = defaultContainer
	}
	if c.Fetch.PrefetchWorkers < 1 {
		c.Fetch.PrefetchWorkers = defaultPrefetchWorkers
	}
	c.Fetch.CookiesFile = strings.TrimSpace(c.Fetch.CookiesFile)
	if c.Fetch.CookiesFile == "" {
		if value, ok := os.LookupEnv("CLIPSTITCH_COOKIES_FILE"); ok {
			c.Fetch.CookiesFile = strings.TrimSpace(value)
		}
	}
	if c.Fetch.CookiesFile != "" {
		expanded, err := expandPath(c.Fetch.CookiesFile)
		if err != nil {
			return fmt.Errorf("fetch.cookies_file: %w", err)
		}
		c.Fetch.CookiesFile = expanded
	}
	return nil
}

func (c *Config) normalizeTranscode() {
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	if value, ok := os.LookupEnv("CLIPSTITCH_FFMPEG"); ok && strings.TrimSpace(value) != "" {
		c.Transcode.FFmpegBinary = strings.TrimSpace(value)
	}
	if c.Transcode.FFmpegBinary == "" {
		c.Transcode.FFmpegBinary = defaultFFmpegBinary
	}
	c.Transcode.FFprobeBinary = strings.TrimSpace(c.Transcode.FFprobeBinary)
	if value, ok := os.LookupEnv("CLIPSTITCH_FFPROBE"); ok && strings.TrimSpace(value) != "" {
		c.Transcode.FFprobeBinary = strings.TrimSpace(value)
	}
	if c.Transcode.FFprobeBinary == "" {
		c.Transcode.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

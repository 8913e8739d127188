package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

var supportedContainers = map[string]struct{}{
	"mp4":  {},
	"mkv":  {},
	"webm": {},
	"mov":  {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if c.Journal.KeepRuns < 0 {
		return errors.New("journal.keep_runs must not be negative")
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		return errors.New("paths.scratch_dir must be set")
	}
	cache := filepath.Clean(c.Paths.CacheDir)
	scratch := filepath.Clean(c.Paths.ScratchDir)
	if cache == scratch {
		return errors.New("paths.scratch_dir must differ from paths.cache_dir; scratch is purged on every run")
	}
	if rel, err := filepath.Rel(scratch, cache); err == nil && !strings.HasPrefix(rel, "..") {
		return errors.New("paths.cache_dir must not live inside paths.scratch_dir")
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.MaxHeight <= 0 {
		return errors.New("fetch.max_height must be positive")
	}
	if _, ok := supportedContainers[c.Fetch.Container]; !ok {
		names := make([]string, 0, len(supportedContainers))
		for name := range supportedContainers {
			names = append(names, name)
		}
		sort.Strings(names)
		return fmt.Errorf("fetch.container %q unsupported (expected one of %s)", c.Fetch.Container, strings.Join(names, ", "))
	}
	if c.Fetch.PrefetchWorkers > 16 {
		return errors.New("fetch.prefetch_workers must be between 1 and 16")
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"fetch.timeout_seconds":           c.Fetch.TimeoutSeconds,
		"transcode.cut_timeout_seconds":   c.Transcode.CutTimeoutSeconds,
		"transcode.merge_timeout_seconds": c.Transcode.MergeTimeoutSeconds,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q unsupported (expected debug, info, warn, or error)", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

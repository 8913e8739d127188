// Package config loads, normalizes, and validates clipstitch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CLIPSTITCH_YTDLP and CLIPSTITCH_CACHE_DIR. The Config type centralizes the
// cache, scratch, and tooling knobs the pipeline and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

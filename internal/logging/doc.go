// Package logging assembles structured slog loggers and formatting helpers used
// across clipstitch.
//
// It owns the console and JSON handlers, routes output to stderr plus an
// optional per-run log file, and exposes context-aware helpers so pipeline code
// can tag log lines with run IDs, request positions, and stage names. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging

// Package logs reads per-run log files written by logging.OpenRunLog.
//
// Last returns the final lines of a run log with bounded memory; Follow keeps
// polling a file from an offset and hands each new line to a callback until
// the context ends. `clipstitch history log` is built on both.
package logs

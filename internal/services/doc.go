// Package services defines shared utilities consumed by the pipeline stages
// and the external tool clients.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, request positions, stage names, and
//     source identifiers for logging.
//   - Structured error markers plus the Wrap helper that tag failures for
//     consistent classification and CLI exit codes.
//
// The ytdlp and ffmpeg subpackages wrap the external binaries behind
// injectable runners so stage logic can be tested without them.
package services

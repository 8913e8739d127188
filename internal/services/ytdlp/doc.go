// Package ytdlp mediates access to the yt-dlp CLI used to retrieve source
// videos.
//
// It builds the format selector for the configured height ceiling, forces a
// single merged container, parses --newline progress output, and exposes an
// Executor seam so fetch logic can be tested without network access.
package ytdlp

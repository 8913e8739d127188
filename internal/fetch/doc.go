// Package fetch guarantees a local copy of a remote source video.
//
// Fetcher resolves a reference to its canonical identifier, serves it from the
// source cache when present and otherwise downloads it with yt-dlp into the
// cache's staging area before committing it. Concurrent requests for one
// identifier collapse into a single download inside the process and are
// serialised across processes with a file lock.
package fetch

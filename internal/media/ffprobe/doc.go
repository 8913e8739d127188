// Package ffprobe inspects media files through ffprobe's JSON output.
//
// The cutter uses it to confirm a stream-copied clip actually carries video,
// and the merger uses StreamSignature to check that every clip shares the
// codec parameters a lossless concat requires.
package ffprobe

// Package sourceid extracts the 11-character video identifier that keys the
// source cache from the URL shapes users paste into task files.
package sourceid

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrNoIdentifier reports a reference from which no identifier could be extracted.
var ErrNoIdentifier = errors.New("no video identifier in reference")

// Length is the fixed size of a video identifier.
const Length = 11

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var watchHosts = map[string]struct{}{
	"youtube.com":              {},
	"www.youtube.com":          {},
	"m.youtube.com":            {},
	"music.youtube.com":        {},
	"youtube-nocookie.com":     {},
	"www.youtube-nocookie.com": {},
}

// pathPrefixes are the path segments that are followed directly by an identifier.
var pathPrefixes = []string{"embed", "shorts", "live", "v", "e"}

// Valid reports whether id has the identifier shape.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

// Extract returns the identifier carried by ref. Recognised forms are
// watch?v=<id>, youtu.be/<id>, and /embed|shorts|live|v/<id> on the YouTube
// hosts. A missing scheme is tolerated; a bare identifier is not a reference.
func Extract(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty reference", ErrNoIdentifier)
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrNoIdentifier, ref, err)
	}
	host := strings.ToLower(parsed.Hostname())

	var candidate string
	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		candidate = firstSegment(parsed.Path)
	case isWatchHost(host):
		candidate = fromWatchURL(parsed)
	default:
		return "", fmt.Errorf("%w: unsupported host in %q", ErrNoIdentifier, ref)
	}

	if !Valid(candidate) {
		return "", fmt.Errorf("%w: %q", ErrNoIdentifier, ref)
	}
	return candidate, nil
}

// CanonicalURL returns the watch URL for id, dropping playlist and tracking
// parameters from whatever form the user supplied.
func CanonicalURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func isWatchHost(host string) bool {
	_, ok := watchHosts[host]
	return ok
}

func fromWatchURL(u *url.URL) string {
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	segments := splitPath(u.Path)
	for i := 0; i < len(segments)-1; i++ {
		for _, prefix := range pathPrefixes {
			if segments[i] == prefix {
				return segments[i+1]
			}
		}
	}
	return ""
}

func firstSegment(path string) string {
	segments := splitPath(path)
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}

func splitPath(path string) []string {
	raw := strings.Split(strings.Trim(path, "/"), "/")
	out := raw[:0]
	for _, seg := range raw {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

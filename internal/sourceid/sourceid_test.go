package sourceid

import (
	"errors"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch with extra params", "https://www.youtube.com/watch?list=PL123&v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ"},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"short link with timestamp", "https://youtu.be/dQw4w9WgXcQ?t=10", "dQw4w9WgXcQ"},
		{"embed", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"nocookie embed", "https://www.youtube-nocookie.com/embed/a_b-C1d2E3f", "a_b-C1d2E3f"},
		{"shorts", "https://youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"mobile", "https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"no scheme", "youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"http scheme", "http://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.ref)
			if err != nil {
				t.Fatalf("Extract(%q) returned error: %v", tt.ref, err)
			}
			if got != tt.want {
				t.Fatalf("Extract(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestExtractRejects(t *testing.T) {
	for _, ref := range []string{
		"",
		"not a url",
		"dQw4w9WgXcQ",
		"https://example.com/watch?v=dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQX",
		"https://www.youtube.com/channel/UC123",
		"https://youtu.be/",
		"https://www.youtube.com/watch?v=dQw4w9Wg$cQ",
	} {
		t.Run(ref, func(t *testing.T) {
			if _, err := Extract(ref); !errors.Is(err, ErrNoIdentifier) {
				t.Fatalf("Extract(%q) error = %v, want ErrNoIdentifier", ref, err)
			}
		})
	}
}

func TestCanonicalURLRoundTrips(t *testing.T) {
	id, err := Extract(CanonicalURL("dQw4w9WgXcQ"))
	if err != nil || id != "dQw4w9WgXcQ" {
		t.Fatalf("canonical url did not round trip: %q %v", id, err)
	}
}

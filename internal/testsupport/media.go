package testsupport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"clipstitch/internal/services/ffmpeg"
	"clipstitch/internal/services/ytdlp"
)

// FakeDownloader satisfies ytdlp.Downloader by writing a small file named
// after the requested base name.
type FakeDownloader struct {
	mu    sync.Mutex
	calls []string
	// Fail maps a source identifier to the error its download returns.
	Fail map[string]error
}

// Download records the call and writes <OutputDir>/<BaseName>.<Container>.
func (d *FakeDownloader) Download(_ context.Context, url string, opts ytdlp.Options, progress func(ytdlp.ProgressUpdate)) (string, error) {
	d.mu.Lock()
	d.calls = append(d.calls, url)
	err := d.Fail[opts.BaseName]
	d.mu.Unlock()
	if err != nil {
		return "", err
	}
	if progress != nil {
		progress(ytdlp.ProgressUpdate{Percent: 100})
	}
	ext := opts.Container
	if ext == "" {
		ext = "mp4"
	}
	path := filepath.Join(opts.OutputDir, opts.BaseName+"."+ext)
	if err := os.WriteFile(path, []byte("source:"+opts.BaseName), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Calls returns the URLs requested so far.
func (d *FakeDownloader) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

// FakeFFmpeg records ffmpeg invocations and emulates their output files.
// Stream copies whose input path contains any of FailCopy fail; re-encodes
// whose input contains any of FailReencode fail. A concat writes the
// manifest's referenced clip contents, joined, to the output.
type FakeFFmpeg struct {
	mu           sync.Mutex
	Invocations  [][]string
	FailCopy     []string
	FailReencode []string
	FailConcat   bool
}

// Runner returns the command runner to pass to ffmpeg.WithCommandRunner.
func (f *FakeFFmpeg) Runner() ffmpeg.CommandRunner {
	return func(_ context.Context, _ string, args ...string) error {
		f.mu.Lock()
		f.Invocations = append(f.Invocations, slices.Clone(args))
		f.mu.Unlock()

		output := args[len(args)-1]
		input := argAfter(args, "-i")
		switch {
		case slices.Contains(args, "concat"):
			if f.FailConcat {
				return errors.New("concat failed")
			}
			return writeConcat(input, output)
		case slices.Contains(args, "copy"):
			if containsAny(input, f.FailCopy) {
				return errors.New("stream copy failed")
			}
			return os.WriteFile(output, []byte("copy:"+filepath.Base(input)+"@"+argAfter(args, "-ss")+"+"+argAfter(args, "-t")+"\n"), 0o644)
		default:
			if containsAny(input, f.FailReencode) {
				return errors.New("re-encode failed")
			}
			return os.WriteFile(output, []byte("reencode:"+filepath.Base(input)+"@"+argAfter(args, "-ss")+"+"+argAfter(args, "-t")+"\n"), 0o644)
		}
	}
}

// Count returns how many invocations contained marker as an argument.
func (f *FakeFFmpeg) Count(marker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, args := range f.Invocations {
		if slices.Contains(args, marker) {
			n++
		}
	}
	return n
}

func writeConcat(manifest, output string) error {
	data, err := os.ReadFile(manifest)
	if err != nil {
		return err
	}
	var joined []byte
	for line := range strings.SplitSeq(strings.TrimSpace(string(data)), "\n") {
		path := strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
		path = strings.ReplaceAll(path, `'\''`, "'")
		clip, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		joined = append(joined, clip...)
	}
	return os.WriteFile(output, joined, 0o644)
}

func argAfter(args []string, flag string) string {
	idx := slices.Index(args, flag)
	if idx < 0 || idx+1 >= len(args) {
		return ""
	}
	return args[idx+1]
}

func containsAny(value string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(value, needle) {
			return true
		}
	}
	return false
}

package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProgressUpdate captures yt-dlp download progress.
type ProgressUpdate struct {
	Percent float64
	Message string
}

// Downloader defines the behaviour required by the fetch layer.
type Downloader interface {
	Download(ctx context.Context, url string, opts Options, progress func(ProgressUpdate)) (string, error)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithCookiesFile passes a Netscape cookies file through to yt-dlp.
func WithCookiesFile(path string) Option {
	return func(c *Client) {
		c.cookiesFile = strings.TrimSpace(path)
	}
}

// Options describes a single download.
type Options struct {
	// MaxHeight caps the vertical resolution requested. Zero means no cap.
	MaxHeight int
	// Container is the merge output format, e.g. "mp4".
	Container string
	// OutputDir receives the downloaded file.
	OutputDir string
	// BaseName is the file name without extension.
	BaseName string
}

// Client wraps yt-dlp CLI interactions.
type Client struct {
	binary      string
	timeout     time.Duration
	cookiesFile string
	exec        Executor
}

// New constructs a yt-dlp client.
func New(binary string, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	client := &Client{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FormatSelector returns the yt-dlp -f expression preferring the best streams
// at or below maxHeight, then falling back to whatever is available.
func FormatSelector(maxHeight int) string {
	if maxHeight <= 0 {
		return "bv*+ba/b"
	}
	h := strconv.Itoa(maxHeight)
	return "bv*[height<=" + h + "]+ba/b[height<=" + h + "]/bv*+ba/b"
}

// Args builds the yt-dlp argument list for a download.
func (c *Client) Args(url string, opts Options) []string {
	container := strings.TrimPrefix(strings.TrimSpace(opts.Container), ".")
	if container == "" {
		container = "mp4"
	}
	template := filepath.Join(opts.OutputDir, opts.BaseName+".%(ext)s")
	args := []string{
		"--no-playlist",
		"--newline",
		"--no-part",
		"--no-mtime",
		"-f", FormatSelector(opts.MaxHeight),
		"--merge-output-format", container,
		"-o", template,
	}
	if c.cookiesFile != "" {
		args = append(args, "--cookies", c.cookiesFile)
	}
	return append(args, url)
}

// Download runs yt-dlp and returns the path of the produced file inside
// opts.OutputDir.
func (c *Client) Download(ctx context.Context, url string, opts Options, progress func(ProgressUpdate)) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", errors.New("source url required")
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return "", errors.New("output directory required")
	}
	if strings.TrimSpace(opts.BaseName) == "" {
		return "", errors.New("output base name required")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tail := newLineTail(8)
	err := c.exec.Run(runCtx, c.binary, c.Args(url, opts), func(line string) {
		tail.add(line)
		if progress == nil {
			return
		}
		if update, ok := parseProgress(line); ok {
			progress(update)
		}
	})
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("yt-dlp timed out after %s: %w", c.timeout, err)
		}
		if detail := tail.errorDetail(); detail != "" {
			return "", fmt.Errorf("yt-dlp download: %w: %s", err, detail)
		}
		return "", fmt.Errorf("yt-dlp download: %w", err)
	}

	path, err := locateOutput(opts)
	if err != nil {
		return "", err
	}
	return path, nil
}

func locateOutput(opts Options) (string, error) {
	container := strings.TrimPrefix(strings.TrimSpace(opts.Container), ".")
	if container == "" {
		container = "mp4"
	}
	preferred := filepath.Join(opts.OutputDir, opts.BaseName+"."+container)
	if info, err := os.Stat(preferred); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		return preferred, nil
	}

	entries, err := os.ReadDir(opts.OutputDir)
	if err != nil {
		return "", fmt.Errorf("inspect download output: %w", err)
	}
	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), opts.BaseName+".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".part" || ext == ".ytdl" || ext == ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(opts.OutputDir, entry.Name()), modTime: info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", errors.New("yt-dlp reported success but produced no output file")
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.After(candidates[j].modTime) })
	return candidates[0].path, nil
}

// parseProgress reads "[download]  42.5% of ..." lines emitted with --newline.
func parseProgress(line string) (ProgressUpdate, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[download]") {
		return ProgressUpdate{}, false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "[download]"))
	idx := strings.Index(payload, "%")
	if idx <= 0 {
		return ProgressUpdate{}, false
	}
	percent, err := strconv.ParseFloat(strings.TrimSpace(payload[:idx]), 64)
	if err != nil {
		return ProgressUpdate{}, false
	}
	return ProgressUpdate{Percent: percent, Message: payload}, true
}

type lineTail struct {
	mu    sync.Mutex
	limit int
	lines []string
}

func newLineTail(limit int) *lineTail {
	return &lineTail{limit: limit}
}

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

// errorDetail prefers yt-dlp's "ERROR:" lines and falls back to the last line seen.
func (t *lineTail) errorDetail() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(t.lines[i], "ERROR:") {
			return t.lines[i]
		}
	}
	if len(t.lines) == 0 {
		return ""
	}
	return t.lines[len(t.lines)-1]
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	if scanErr := forwardLines(onOutput, stdout, stderr); scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

// forwardLines scans every reader concurrently and hands each line to
// onOutput. Calls to onOutput never overlap.
func forwardLines(onOutput func(string), readers ...io.Reader) error {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		once    sync.Once
		scanErr error
	)
	for _, r := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				if onOutput == nil {
					continue
				}
				mu.Lock()
				onOutput(scanner.Text())
				mu.Unlock()
			}
			if err := scanner.Err(); err != nil {
				once.Do(func() { scanErr = err })
			}
		}()
	}
	wg.Wait()
	return scanErr
}

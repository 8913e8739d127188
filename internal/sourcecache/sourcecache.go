package sourcecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"clipstitch/internal/config"
	"clipstitch/internal/fileutil"
	"clipstitch/internal/logging"
	"clipstitch/internal/sourceid"
)

const (
	incomingDirName = ".incoming"
	locksDirName    = ".locks"
	lockRetryDelay  = 250 * time.Millisecond
)

// mediaExtensions are the containers a cached source may carry. The
// configured container is probed first.
var mediaExtensions = []string{"mp4", "mkv", "webm", "mov", "m4v"}

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Manager owns the cache directory.
type Manager struct {
	root   string
	ext    string
	logger *slog.Logger
	statfs statfsFunc
}

// Entry is a cached source file.
type Entry struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Stats describes current cache usage.
type Stats struct {
	Root         string         `json:"root"`
	Entries      int            `json:"entries"`
	TotalBytes   int64          `json:"total_bytes"`
	FreeBytes    uint64         `json:"free_bytes"`
	TotalFSBytes uint64         `json:"total_fs_bytes"`
	Summaries    []EntrySummary `json:"entry_summaries"`
}

// EntrySummary pairs an entry with its sidecar metadata for listing.
type EntrySummary struct {
	Entry
	SourceURL string    `json:"source_url,omitempty"`
	MaxHeight int       `json:"max_height,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
}

// NewManager builds a cache manager rooted at cfg.Paths.CacheDir.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	if cfg == nil {
		return nil
	}
	return New(cfg.Paths.CacheDir, cfg.Fetch.Container, logger)
}

// New builds a cache manager for root, preferring files with extension ext.
func New(root, ext string, logger *slog.Logger) *Manager {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		ext = "mp4"
	}
	m := &Manager{
		root:   strings.TrimSpace(root),
		ext:    ext,
		statfs: realStatfs,
	}
	m.SetLogger(logger)
	return m
}

// SetLogger refreshes the manager's logging destination.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	m.logger = logging.NewComponentLogger(logger, "sourcecache")
}

// Root returns the cache directory.
func (m *Manager) Root() string {
	return m.root
}

// EnsureDir creates the cache directory if needed.
func (m *Manager) EnsureDir() error {
	if m.root == "" {
		return errors.New("sourcecache: cache dir is empty")
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("sourcecache: create cache dir: %w", err)
	}
	return nil
}

// Path returns the canonical cache path for id in the preferred container.
func (m *Manager) Path(id string) string {
	return m.pathWithExt(id, m.ext)
}

func (m *Manager) pathWithExt(id, ext string) string {
	return filepath.Join(m.root, id+"."+ext)
}

// Exists reports whether a complete cached file for id is present.
func (m *Manager) Exists(id string) bool {
	_, ok := m.Lookup(id)
	return ok
}

// Lookup returns the cached file for id. The preferred container is checked
// first, then the other supported containers in case the platform could not
// supply the preferred one. Empty files are ignored.
func (m *Manager) Lookup(id string) (Entry, bool) {
	if !sourceid.Valid(id) {
		return Entry{}, false
	}
	for _, ext := range m.extensionOrder() {
		path := m.pathWithExt(id, ext)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
			continue
		}
		return Entry{ID: id, Path: path, SizeBytes: info.Size(), ModifiedAt: info.ModTime()}, true
	}
	return Entry{}, false
}

func (m *Manager) extensionOrder() []string {
	order := make([]string, 0, len(mediaExtensions)+1)
	order = append(order, m.ext)
	for _, ext := range mediaExtensions {
		if ext != m.ext {
			order = append(order, ext)
		}
	}
	return order
}

// IncomingDir returns the staging directory for an in-flight download of id.
func (m *Manager) IncomingDir(id string) string {
	return filepath.Join(m.root, incomingDirName, id)
}

// DiscardIncoming removes the staging directory for id.
func (m *Manager) DiscardIncoming(id string) {
	dir := m.IncomingDir(id)
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(m.logger, "failed to remove incoming download", "incoming_cleanup_failed",
			logging.String("path", dir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "partial download remains on disk"),
			logging.String(logging.FieldErrorHint, "remove the .incoming directory manually"),
		)
	}
}

// Commit moves a completed download into its canonical location and records
// its sidecar metadata. The file keeps the extension it was downloaded with.
func (m *Manager) Commit(ctx context.Context, id, downloaded string, meta EntryMetadata) (Entry, error) {
	if !sourceid.Valid(id) {
		return Entry{}, fmt.Errorf("sourcecache: invalid identifier %q", id)
	}
	info, err := os.Stat(downloaded)
	if err != nil {
		return Entry{}, fmt.Errorf("sourcecache: inspect download: %w", err)
	}
	if info.Size() == 0 {
		return Entry{}, fmt.Errorf("sourcecache: download %q is empty", downloaded)
	}
	if err := m.EnsureDir(); err != nil {
		return Entry{}, err
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(downloaded), "."))
	if ext == "" {
		ext = m.ext
	}
	target := m.pathWithExt(id, ext)
	if err := fileutil.MoveFile(downloaded, target); err != nil {
		return Entry{}, fmt.Errorf("sourcecache: commit %s: %w", id, err)
	}

	meta.ID = id
	meta.Container = ext
	meta.SizeBytes = info.Size()
	if meta.FetchedAt.IsZero() {
		meta.FetchedAt = time.Now().UTC()
	}
	if err := m.WriteMetadata(ctx, meta); err != nil {
		logging.WarnWithContext(m.logger, "cache metadata not written", "cache_metadata_write_failed",
			logging.String(logging.FieldSourceID, id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "cache listing shows no source url for this entry"),
			logging.String(logging.FieldErrorHint, "check cache directory permissions"),
		)
	}

	m.logger.InfoContext(ctx, "source cached",
		logging.String(logging.FieldEventType, "source_cached"),
		logging.String(logging.FieldSourceID, id),
		logging.String("path", target),
		logging.Int64("size_bytes", info.Size()),
	)
	return Entry{ID: id, Path: target, SizeBytes: info.Size(), ModifiedAt: time.Now()}, nil
}

// Lock takes the cross-process lock for id, waiting until ctx is done.
// The returned function releases it.
func (m *Manager) Lock(ctx context.Context, id string) (func(), error) {
	dir := filepath.Join(m.root, locksDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sourcecache: create lock dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, id+".lock"))
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("sourcecache: lock %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("sourcecache: lock %s not acquired", id)
	}
	return func() {
		_ = lock.Unlock()
	}, nil
}

// Remove deletes the cached file and sidecar for id. Missing entries are not an error.
func (m *Manager) Remove(ctx context.Context, id string) (bool, error) {
	if !sourceid.Valid(id) {
		return false, fmt.Errorf("sourcecache: invalid identifier %q", id)
	}
	removed := false
	for _, ext := range m.extensionOrder() {
		err := os.Remove(m.pathWithExt(id, ext))
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, os.ErrNotExist):
			return removed, fmt.Errorf("sourcecache: remove %s: %w", id, err)
		}
	}
	if err := os.Remove(m.metadataPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return removed, fmt.Errorf("sourcecache: remove metadata %s: %w", id, err)
	}
	if removed {
		m.logger.InfoContext(ctx, "cache entry removed",
			logging.String(logging.FieldEventType, "cache_entry_removed"),
			logging.String(logging.FieldSourceID, id),
		)
	}
	return removed, nil
}

// List returns every cached entry, newest first.
func (m *Manager) List() ([]EntrySummary, error) {
	dirEntries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("sourcecache: list root: %w", err)
	}
	known := make(map[string]struct{}, len(mediaExtensions))
	for _, ext := range mediaExtensions {
		known[ext] = struct{}{}
	}

	summaries := make([]EntrySummary, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		if _, ok := known[strings.ToLower(ext)]; !ok {
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		if !sourceid.Valid(id) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		summary := EntrySummary{Entry: Entry{
			ID:         id,
			Path:       filepath.Join(m.root, name),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		}}
		if meta, ok, err := m.LoadMetadata(id); err == nil && ok {
			summary.SourceURL = meta.SourceURL
			summary.MaxHeight = meta.MaxHeight
			summary.FetchedAt = meta.FetchedAt
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ModifiedAt.After(summaries[j].ModifiedAt)
	})
	return summaries, nil
}

// Stats returns current cache usage and filesystem free-space info.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	summaries, err := m.List()
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Root: m.root, Entries: len(summaries), Summaries: summaries}
	for _, summary := range summaries {
		s.TotalBytes += summary.SizeBytes
	}
	if _, statErr := os.Stat(m.root); statErr == nil {
		total, free, err := m.statfs(m.root)
		if err != nil {
			return s, fmt.Errorf("sourcecache: statfs: %w", err)
		}
		s.TotalFSBytes = total
		s.FreeBytes = free
	}
	if len(summaries) == 0 {
		m.logger.DebugContext(ctx, "source cache empty", logging.String("root", m.root))
	}
	return s, nil
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}

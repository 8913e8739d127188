package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"clipstitch/internal/config"
	"clipstitch/internal/logging"
	"clipstitch/internal/services"
	"clipstitch/internal/services/ytdlp"
	"clipstitch/internal/sourcecache"
	"clipstitch/internal/sourceid"
)

// ProgressFunc receives download progress for a source identifier.
type ProgressFunc func(sourceID string, update ytdlp.ProgressUpdate)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithProgressFunc registers a download progress observer.
func WithProgressFunc(fn ProgressFunc) Option {
	return func(f *Fetcher) {
		f.progress = fn
	}
}

// Fetcher ensures sources are present in the cache.
type Fetcher struct {
	cache      *sourcecache.Manager
	downloader ytdlp.Downloader
	maxHeight  int
	container  string
	logger     *slog.Logger
	progress   ProgressFunc

	group   singleflight.Group
	fetches atomic.Int64
}

// New constructs a Fetcher backed by cache and downloader.
func New(cfg *config.Config, cache *sourcecache.Manager, downloader ytdlp.Downloader, logger *slog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		cache:      cache,
		downloader: downloader,
		maxHeight:  cfg.Fetch.MaxHeight,
		container:  cfg.Fetch.Container,
		logger:     logging.NewComponentLogger(logger, "fetch"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetches reports how many downloads this Fetcher has started.
func (f *Fetcher) Fetches() int64 {
	return f.fetches.Load()
}

// Resolve extracts the canonical identifier from ref.
func (f *Fetcher) Resolve(ref string) (string, error) {
	id, err := sourceid.Extract(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidReference, ref, err)
	}
	return id, nil
}

// Cached reports whether id is already present in the cache.
func (f *Fetcher) Cached(id string) bool {
	return f.cache.Exists(id)
}

// Ensure resolves ref and returns its cached source, downloading it first if
// necessary.
func (f *Fetcher) Ensure(ctx context.Context, ref string) (sourcecache.Entry, error) {
	id, err := f.Resolve(ref)
	if err != nil {
		return sourcecache.Entry{}, err
	}
	return f.EnsureID(ctx, id)
}

// EnsureID returns the cached source for an already resolved identifier.
// A file present at the canonical path is served as is.
func (f *Fetcher) EnsureID(ctx context.Context, id string) (sourcecache.Entry, error) {
	if entry, ok := f.cache.Lookup(id); ok {
		f.warnOnHeightMismatch(id)
		return entry, nil
	}
	result, err, _ := f.group.Do(id, func() (any, error) {
		return f.download(ctx, id)
	})
	if err != nil {
		return sourcecache.Entry{}, err
	}
	return result.(sourcecache.Entry), nil
}

func (f *Fetcher) download(ctx context.Context, id string) (sourcecache.Entry, error) {
	url := sourceid.CanonicalURL(id)
	logger := f.logger.With(logging.String(logging.FieldSourceID, id))

	release, err := f.cache.Lock(ctx, id)
	if err != nil {
		return sourcecache.Entry{}, &DownloadError{SourceID: id, URL: url, Err: err}
	}
	defer release()

	// Another process may have committed the file while we waited on the lock.
	if entry, ok := f.cache.Lookup(id); ok {
		logger.DebugContext(ctx, "source committed by another process")
		return entry, nil
	}

	incoming := f.cache.IncomingDir(id)
	f.cache.DiscardIncoming(id)
	if err := os.MkdirAll(incoming, 0o755); err != nil {
		return sourcecache.Entry{}, &DownloadError{
			SourceID: id,
			URL:      url,
			Err:      services.Wrap(services.ErrConfiguration, "fetch", "prepare staging", "cannot create incoming directory", err),
		}
	}
	defer f.cache.DiscardIncoming(id)

	f.fetches.Add(1)
	started := time.Now()
	logger.InfoContext(ctx, "downloading source",
		logging.String(logging.FieldEventType, "download_started"),
		logging.String("url", url),
		logging.Int("max_height", f.maxHeight),
	)

	sampler := logging.NewProgressSampler(25)
	onProgress := func(update ytdlp.ProgressUpdate) {
		if f.progress != nil {
			f.progress(id, update)
		}
		if sampler.ShouldLog(update.Percent) {
			logger.InfoContext(ctx, "download progress",
				logging.String(logging.FieldEventType, "download_progress"),
				logging.Float64("percent", update.Percent),
			)
		}
	}

	downloaded, err := f.downloader.Download(ctx, url, ytdlp.Options{
		MaxHeight: f.maxHeight,
		Container: f.container,
		OutputDir: incoming,
		BaseName:  id,
	}, onProgress)
	if err != nil {
		logging.WarnWithContext(logger, "download failed", "download_failed",
			logging.String("url", url),
			logging.Error(err),
			logging.String(logging.FieldImpact, "requests for this source are skipped for the rest of the run"),
			logging.String(logging.FieldErrorHint, "check the video is public and yt-dlp is up to date"),
		)
		return sourcecache.Entry{}, &DownloadError{SourceID: id, URL: url, Err: err}
	}

	entry, err := f.cache.Commit(ctx, id, downloaded, sourcecache.EntryMetadata{
		SourceURL: url,
		MaxHeight: f.maxHeight,
	})
	if err != nil {
		return sourcecache.Entry{}, &DownloadError{SourceID: id, URL: url, Err: err}
	}

	logger.InfoContext(ctx, "download complete",
		logging.String(logging.FieldEventType, "download_completed"),
		logging.Duration("elapsed", time.Since(started)),
		logging.Int64("size_bytes", entry.SizeBytes),
	)
	return entry, nil
}

func (f *Fetcher) warnOnHeightMismatch(id string) {
	meta, ok, err := f.cache.LoadMetadata(id)
	if err != nil || !ok || meta.MaxHeight == 0 || meta.MaxHeight == f.maxHeight {
		return
	}
	logging.WarnWithContext(f.logger.With(logging.String(logging.FieldSourceID, id)),
		"serving cached source fetched with a different height cap", "cache_height_mismatch",
		logging.Int("cached_max_height", meta.MaxHeight),
		logging.Int("configured_max_height", f.maxHeight),
		logging.String(logging.FieldImpact, "clips use the cached resolution"),
		logging.String(logging.FieldErrorHint, "run 'clipstitch cache remove "+id+"' to refetch"),
	)
}

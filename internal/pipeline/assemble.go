package pipeline

import (
	"fmt"
	"log/slog"

	"clipstitch/internal/config"
	"clipstitch/internal/cutter"
	"clipstitch/internal/fetch"
	"clipstitch/internal/media/ffprobe"
	"clipstitch/internal/merger"
	"clipstitch/internal/services/ffmpeg"
	"clipstitch/internal/services/ytdlp"
	"clipstitch/internal/sourcecache"
)

// Tools overrides the external tool clients. Zero fields are built from the
// configuration.
type Tools struct {
	Downloader ytdlp.Downloader
	FFmpeg     *ffmpeg.Client
	Prober     ffprobe.Prober
	Progress   fetch.ProgressFunc
}

// Components are the wired collaborators of an assembled pipeline.
type Components struct {
	Cache    *sourcecache.Manager
	Fetcher  *fetch.Fetcher
	Cutter   *cutter.Cutter
	Merger   *merger.Merger
	Pipeline *Pipeline
}

// Assemble wires the cache, tool clients and stages described by cfg.
func Assemble(cfg *config.Config, logger *slog.Logger, tools Tools, opts ...Option) (*Components, error) {
	cache := sourcecache.NewManager(cfg, logger)
	if err := cache.EnsureDir(); err != nil {
		return nil, err
	}

	downloader := tools.Downloader
	if downloader == nil {
		client, err := ytdlp.New(cfg.Fetch.Binary, cfg.Fetch.TimeoutSeconds, ytdlp.WithCookiesFile(cfg.Fetch.CookiesFile))
		if err != nil {
			return nil, fmt.Errorf("yt-dlp client: %w", err)
		}
		downloader = client
	}
	ffmpegClient := tools.FFmpeg
	if ffmpegClient == nil {
		ffmpegClient = ffmpeg.New(cfg.Transcode.FFmpegBinary)
	}
	prober := tools.Prober
	if prober == nil && cfg.Transcode.VerifyClips {
		prober = ffprobe.New(cfg.Transcode.FFprobeBinary, nil)
	}

	var fetchOpts []fetch.Option
	if tools.Progress != nil {
		fetchOpts = append(fetchOpts, fetch.WithProgressFunc(tools.Progress))
	}
	var cutOpts []cutter.Option
	var mergeOpts []merger.Option
	if prober != nil {
		cutOpts = append(cutOpts, cutter.WithProber(prober))
		mergeOpts = append(mergeOpts, merger.WithProber(prober))
	}

	c := &Components{Cache: cache}
	c.Fetcher = fetch.New(cfg, cache, downloader, logger, fetchOpts...)
	c.Cutter = cutter.New(cfg, ffmpegClient, logger, cutOpts...)
	c.Merger = merger.New(cfg, ffmpegClient, logger, mergeOpts...)
	c.Pipeline = New(cfg, c.Fetcher, c.Cutter, c.Merger, logger, opts...)
	return c, nil
}

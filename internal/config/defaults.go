package config

const (
	defaultConfigPath          = "~/.config/clipstitch/config.toml"
	defaultScratchDir          = "~/.local/share/clipstitch/scratch"
	defaultLogDir              = "~/.local/share/clipstitch/logs"
	defaultJournalPath         = "~/.local/share/clipstitch/journal.db"
	defaultLogRetentionDays    = 30
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultFetchBinary         = "yt-dlp"
	defaultMaxHeight           = 720
	defaultContainer           = "mp4"
	defaultFetchTimeout        = 1800
	defaultPrefetchWorkers     = 1
	defaultFFmpegBinary        = "ffmpeg"
	defaultFFprobeBinary       = "ffprobe"
	defaultCutTimeoutSeconds   = 600
	defaultMergeTimeoutSeconds = 1800
	defaultJournalKeepRuns     = 200
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:    defaultCacheDir(),
			ScratchDir:  defaultScratchDir,
			LogDir:      defaultLogDir,
			JournalPath: defaultJournalPath,
		},
		Fetch: Fetch{
			Binary:          defaultFetchBinary,
			MaxHeight:       defaultMaxHeight,
			Container:       defaultContainer,
			TimeoutSeconds:  defaultFetchTimeout,
			PrefetchWorkers: defaultPrefetchWorkers,
		},
		Transcode: Transcode{
			FFmpegBinary:        defaultFFmpegBinary,
			FFprobeBinary:       defaultFFprobeBinary,
			CutTimeoutSeconds:   defaultCutTimeoutSeconds,
			MergeTimeoutSeconds: defaultMergeTimeoutSeconds,
			VerifyClips:         true,
		},
		Journal: Journal{
			Enabled:  true,
			KeepRuns: defaultJournalKeepRuns,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

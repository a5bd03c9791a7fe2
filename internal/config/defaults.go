package config

const (
	defaultDataDir              = "~/.local/share/veriflow"
	defaultArtifactDir          = "~/.local/share/veriflow/artifacts"
	defaultRequestTimeout       = 30
	defaultSyncConcurrency      = 2
	defaultStaggerMillis        = 250
	defaultMaxAutoRetries       = 1
	defaultPurgeAfterHours      = 24
	defaultProbeInterval        = 15
	defaultForegroundDrainAfter = 300
	defaultLocale               = "hi"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultNotifyTimeout        = 10
)

var defaultSupportedLocales = []string{"hi", "en", "bn", "ta", "te", "mr"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			ArtifactDir: defaultArtifactDir,
		},
		Sync: Sync{
			RequestTimeout: defaultRequestTimeout,
			Concurrency:    defaultSyncConcurrency,
			StaggerMillis:  defaultStaggerMillis,
			MaxAutoRetries: defaultMaxAutoRetries,
			PurgeAfterHrs:  defaultPurgeAfterHours,
		},
		Connectivity: Connectivity{
			ProbeInterval:        defaultProbeInterval,
			ForegroundDrainAfter: defaultForegroundDrainAfter,
		},
		WakeLock: WakeLock{
			RetryOnGesture:  true,
			ReacquireOnShow: true,
		},
		Locale: Locale{
			Default:   defaultLocale,
			Supported: append([]string(nil), defaultSupportedLocales...),
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Uploads:        true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

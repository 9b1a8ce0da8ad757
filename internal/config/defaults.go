package config

const (
	defaultStateDir            = "~/.local/share/scribe/state"
	defaultLogDir              = "~/.local/share/scribe/logs"
	defaultAPIBind             = "127.0.0.1:7519"
	defaultProviderTimeout     = 30
	defaultModelID             = "whisper-large-v3"
	defaultStagingRegion       = "us-east-1"
	defaultStagingURLExpiry    = 120
	defaultInlineThreshold     = int64(4 * 1024 * 1024)
	defaultPollIntervalMS      = 1200
	defaultPollMaxAttempts     = 150
	defaultProgressFloor       = 5.0
	defaultProgressCeiling     = 98.0
	defaultSessionTTLHours     = 24
	defaultSweepIntervalMins   = 15
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

var defaultFormats = []string{"mp3", "wav", "m4a", "aac", "flac", "ogg", "opus", "webm", "mp4"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Provider: Provider{
			ModelID:        defaultModelID,
			RequestTimeout: defaultProviderTimeout,
		},
		Staging: Staging{
			Region:           defaultStagingRegion,
			UseSSL:           true,
			URLExpiryMinutes: defaultStagingURLExpiry,
		},
		Upload: Upload{
			InlineThresholdBytes: defaultInlineThreshold,
			Formats:              append([]string(nil), defaultFormats...),
		},
		Polling: Polling{
			IntervalMS:      defaultPollIntervalMS,
			MaxAttempts:     defaultPollMaxAttempts,
			ProgressFloor:   defaultProgressFloor,
			ProgressCeiling: defaultProgressCeiling,
		},
		Session: Session{
			TTLHours:             defaultSessionTTLHours,
			SweepIntervalMinutes: defaultSweepIntervalMins,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

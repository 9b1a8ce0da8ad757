package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProvider()
	c.normalizeStaging()
	c.normalizeUpload()
	c.normalizePolling()
	c.normalizeSession()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeProvider() {
	if c.Provider.APIKey == "" {
		if value, ok := os.LookupEnv("SCRIBE_PROVIDER_API_KEY"); ok {
			c.Provider.APIKey = value
		}
	}
	c.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(c.Provider.BaseURL), "/")
	c.Provider.ModelID = strings.TrimSpace(c.Provider.ModelID)
	if c.Provider.ModelID == "" {
		c.Provider.ModelID = defaultModelID
	}
	if c.Provider.RequestTimeout <= 0 {
		c.Provider.RequestTimeout = defaultProviderTimeout
	}
}

func (c *Config) normalizeStaging() {
	c.Staging.Endpoint = strings.TrimSpace(c.Staging.Endpoint)
	c.Staging.Bucket = strings.TrimSpace(c.Staging.Bucket)
	if strings.TrimSpace(c.Staging.Region) == "" {
		c.Staging.Region = defaultStagingRegion
	}
	if c.Staging.URLExpiryMinutes <= 0 {
		c.Staging.URLExpiryMinutes = defaultStagingURLExpiry
	}
}

func (c *Config) normalizeUpload() {
	if c.Upload.InlineThresholdBytes <= 0 {
		c.Upload.InlineThresholdBytes = defaultInlineThreshold
	}
	if len(c.Upload.Formats) == 0 {
		c.Upload.Formats = append([]string(nil), defaultFormats...)
	}
	normalized := make([]string, 0, len(c.Upload.Formats))
	for _, format := range c.Upload.Formats {
		format = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(format, ".")))
		if format != "" {
			normalized = append(normalized, format)
		}
	}
	c.Upload.Formats = normalized
}

func (c *Config) normalizePolling() {
	if c.Polling.IntervalMS <= 0 {
		c.Polling.IntervalMS = defaultPollIntervalMS
	}
	if c.Polling.MaxAttempts <= 0 {
		c.Polling.MaxAttempts = defaultPollMaxAttempts
	}
	if c.Polling.ProgressFloor < 0 {
		c.Polling.ProgressFloor = defaultProgressFloor
	}
	if c.Polling.ProgressCeiling <= 0 {
		c.Polling.ProgressCeiling = defaultProgressCeiling
	}
}

func (c *Config) normalizeSession() {
	if c.Session.TTLHours <= 0 {
		c.Session.TTLHours = defaultSessionTTLHours
	}
	if c.Session.SweepIntervalMinutes <= 0 {
		c.Session.SweepIntervalMinutes = defaultSweepIntervalMins
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

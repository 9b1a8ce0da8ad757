package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateStaging(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validatePolling(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProvider() error {
	if c.Provider.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/scribe/config.toml"
		}
		return fmt.Errorf("provider.base_url is required. Edit %s (create with 'scribe config init')", defaultPath)
	}
	if !strings.HasPrefix(c.Provider.BaseURL, "http://") && !strings.HasPrefix(c.Provider.BaseURL, "https://") {
		return fmt.Errorf("provider.base_url must be an http(s) URL, got %q", c.Provider.BaseURL)
	}
	return nil
}

func (c *Config) validateStaging() error {
	if !c.StagingEnabled() {
		if c.Staging.Endpoint != "" || c.Staging.Bucket != "" {
			return errors.New("staging.endpoint and staging.bucket must both be set to enable staging")
		}
		return nil
	}
	if strings.TrimSpace(c.Staging.AccessKey) == "" || strings.TrimSpace(c.Staging.SecretKey) == "" {
		return errors.New("staging.access_key and staging.secret_key must be set when staging is configured")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if len(c.Upload.Formats) == 0 {
		return errors.New("upload.formats must list at least one supported format")
	}
	return nil
}

func (c *Config) validatePolling() error {
	if c.Polling.ProgressCeiling >= 100 {
		return errors.New("polling.progress_ceiling must stay below 100; the final jump to 100 is reserved for confirmed success")
	}
	if c.Polling.ProgressFloor >= c.Polling.ProgressCeiling {
		return errors.New("polling.progress_floor must be below polling.progress_ceiling")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndNormalization(t *testing.T) {
	stateDir := t.TempDir()
	logDir := t.TempDir()
	path := writeConfig(t, `
[paths]
state_dir = "`+stateDir+`"
log_dir = "`+logDir+`"

[provider]
base_url = "https://api.example.com/v1/"

[upload]
formats = [".MP3", "Wav", "", "flac"]
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config found at %s, got %s (exists=%v)", path, resolved, exists)
	}

	if cfg.Provider.BaseURL != "https://api.example.com/v1" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.ModelID == "" {
		t.Fatal("expected default model id applied")
	}
	if got := cfg.Upload.Formats; len(got) != 3 || got[0] != "mp3" || got[1] != "wav" || got[2] != "flac" {
		t.Fatalf("formats not normalized: %v", got)
	}
	if cfg.Upload.InlineThresholdBytes != 4<<20 {
		t.Fatalf("expected 4MiB default threshold, got %d", cfg.Upload.InlineThresholdBytes)
	}
	if cfg.Polling.IntervalMS <= 0 || cfg.Polling.MaxAttempts <= 0 {
		t.Fatalf("polling defaults missing: %+v", cfg.Polling)
	}
	if cfg.Polling.ProgressFloor >= cfg.Polling.ProgressCeiling {
		t.Fatalf("progress bounds inverted: %+v", cfg.Polling)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")
	_, _, exists, err := config.Load(missing)
	if err == nil && exists {
		t.Fatal("expected missing file to be reported as absent")
	}
	// Defaults alone fail validation because provider.base_url is unset.
	if err == nil {
		t.Fatal("expected validation error without provider.base_url")
	}
	if !strings.Contains(err.Error(), "provider.base_url") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Provider.BaseURL = "https://api.example.com"
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{
			"base url scheme", func(c *config.Config) { c.Provider.BaseURL = "ftp://api.example.com" },
			"http(s)",
		},
		{
			"staging half configured", func(c *config.Config) { c.Staging.Endpoint = "minio.local:9000" },
			"staging",
		},
		{
			"staging missing credentials", func(c *config.Config) {
				c.Staging.Endpoint = "minio.local:9000"
				c.Staging.Bucket = "scribe"
			},
			"access_key",
		},
		{
			"ceiling at 100", func(c *config.Config) { c.Polling.ProgressCeiling = 100 },
			"progress_ceiling",
		},
		{
			"floor above ceiling", func(c *config.Config) {
				c.Polling.ProgressFloor = 99
				c.Polling.ProgressCeiling = 98
			},
			"progress_floor",
		},
		{
			"bad log format", func(c *config.Config) { c.Logging.Format = "xml" },
			"logging.format",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantSub, err)
			}
		})
	}
}

func TestProviderAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("SCRIBE_PROVIDER_API_KEY", "env-secret")
	path := writeConfig(t, `
[paths]
state_dir = "`+t.TempDir()+`"
log_dir = "`+t.TempDir()+`"

[provider]
base_url = "https://api.example.com"
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider.APIKey != "env-secret" {
		t.Fatalf("expected api key from environment, got %q", cfg.Provider.APIKey)
	}
}

func TestStagingEnabled(t *testing.T) {
	cfg := config.Default()
	if cfg.StagingEnabled() {
		t.Fatal("expected staging disabled by default")
	}
	cfg.Staging.Endpoint = "minio.local:9000"
	cfg.Staging.Bucket = "scribe-staging"
	if !cfg.StagingEnabled() {
		t.Fatal("expected staging enabled with endpoint and bucket")
	}
}

func TestCreateSampleParsesBack(t *testing.T) {
	target := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	for _, section := range []string{"[provider]", "[upload]", "[polling]", "[session]"} {
		if !strings.Contains(string(data), section) {
			t.Fatalf("sample config missing section %s", section)
		}
	}
}

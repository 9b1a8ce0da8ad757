// Package testsupport provides helpers shared by package tests.
package testsupport

import (
	"testing"

	"scribe/internal/config"
	"scribe/internal/session"
)

// NewConfig returns a configuration rooted in temporary directories with a
// polling cadence fast enough for tests.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Provider.BaseURL = "http://127.0.0.1:1/api"
	cfg.Provider.APIKey = "test-key"
	cfg.Polling.IntervalMS = 1
	cfg.Polling.MaxAttempts = 500
	return &cfg
}

// MustOpenStore opens a session store against a test configuration and
// closes it when the test ends.
func MustOpenStore(t *testing.T, cfg *config.Config) *session.Store {
	t.Helper()

	store, err := session.Open(cfg)
	if err != nil {
		t.Fatalf("open session store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

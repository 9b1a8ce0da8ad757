// Package config loads, normalizes, and validates Scribe configuration.
//
// Configuration is stored as TOML (default ~/.config/scribe/config.toml with a
// scribe.toml project-local fallback). Load applies repository defaults, then
// decodes the file over them, then normalizes paths and fills missing values,
// and finally validates the result so downstream packages can rely on sane
// settings without re-checking.
package config

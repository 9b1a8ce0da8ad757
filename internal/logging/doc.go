// Package logging builds the slog loggers used across Scribe.
//
// Two handlers are supported: a human-readable console handler with flattened
// key=value attributes and a JSON handler for machine consumption. Attr helper
// aliases and standardized field keys keep log output uniform between the
// daemon, the orchestrator, and the CLI.
package logging

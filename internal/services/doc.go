// Package services defines shared utilities consumed by the orchestrator and
// the external integrations beneath it.
//
// Key responsibilities:
//   - Context helpers that stamp session and correlation identifiers for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification uniform across staging, submission, and polling.
//
// Use these helpers when wiring new integrations so operational behaviour
// (error handling, observability) stays consistent.
package services

// Package poller drives bounded status polling of remote transcription
// jobs and synthesizes heuristic progress for callers.
package poller

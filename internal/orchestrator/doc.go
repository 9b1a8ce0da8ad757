// Package orchestrator composes the transcription lifecycle: payload
// validation, inline or staged transmission, remote job submission, bounded
// status polling, durable session updates, and staged-file cleanup.
package orchestrator

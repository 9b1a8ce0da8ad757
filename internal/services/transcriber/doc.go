// Package transcriber integrates with the remote transcription provider:
// job submission, status polling requests, and result-shape normalization.
package transcriber

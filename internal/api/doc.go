// Package api defines the transport-friendly session types shared by the
// daemon's HTTP surface and the CLI, plus the HTTP client the CLI uses to
// reach a running daemon.
package api

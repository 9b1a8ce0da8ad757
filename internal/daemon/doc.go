// Package daemon runs the long-lived scribe process: it enforces
// single-instance execution, resumes interrupted sessions, sweeps expired
// records, and serves the HTTP API the CLI and other clients consume.
package daemon

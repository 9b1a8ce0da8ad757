// Package session persists transcription sessions in SQLite and exposes
// helpers for driving their lifecycle.
//
// The Store manages database connections, schema initialization, merge-patch
// updates, active-session resolution, and expiry sweeps. Session records
// capture job handles, heuristic progress, staged-payload paths, and an
// append-only diagnostic log so the orchestrator can resume work across
// restarts without additional state.
//
// History is retained until expiry (24h default) or explicit deletion; the
// database is not a long-term archive. Schema changes bump schemaVersion in
// store.go; users clear the database to adopt the new schema.
package session

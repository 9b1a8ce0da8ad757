package session

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"scribe/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; users clear the session database to adopt the new schema.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrJobIDImmutable indicates an attempt to overwrite a session's job id.
var ErrJobIDImmutable = errors.New("job id is immutable once set")

// Store manages session persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the session database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "sessions.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the on-disk location of the session database.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'scribe sessions sweep --all' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

// CreateOptions tweaks session creation.
type CreateOptions struct {
	// ReuseID, when non-empty and not already present in the store, becomes
	// the new session's id. Used to honor an active-session pointer left by a
	// previous run.
	ReuseID string
	// TTL overrides the retention window; zero means 24 hours.
	TTL time.Duration
}

// Create inserts a new session record and persists it immediately.
func (s *Store) Create(ctx context.Context, source AudioSource, options Options, opts CreateOptions) (*Session, error) {
	now := time.Now().UTC()
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	id := opts.ReuseID
	if id != "" {
		existing, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			id = ""
		}
	}
	if id == "" {
		id = NewID(now)
	}

	sess := &Session{
		ID:            id,
		Status:        StatusIdle,
		Progress:      0,
		CreatedAt:     now,
		LastUpdatedAt: now,
		ExpiresAt:     now.Add(ttl),
		AudioSource:   source,
		Options:       options,
	}

	sourceJSON, err := json.Marshal(sess.AudioSource)
	if err != nil {
		return nil, fmt.Errorf("marshal audio source: %w", err)
	}
	optionsJSON, err := json.Marshal(sess.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (
            id, status, job_id, progress, staged_file_path,
            created_at, last_updated_at, expires_at,
            audio_source_json, options_json, diagnostics_json, result, error_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.Status,
		nil,
		sess.Progress,
		nil,
		sess.CreatedAt.Format(time.RFC3339Nano),
		sess.LastUpdatedAt.Format(time.RFC3339Nano),
		sess.ExpiresAt.Format(time.RFC3339Nano),
		string(sourceJSON),
		string(optionsJSON),
		nil,
		nil,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// Get fetches a session by identifier. Returns nil when not found.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// GetActive resolves the session the orchestrator should resume: the
// preferred id (from the active-session pointer) when still unexpired, else
// the most recently updated unexpired session in a non-terminal status.
// The preferred id is also skipped once terminal; a finished session is
// viewable through Get but is never resumed. Returns nil when nothing is
// resumable.
func (s *Store) GetActive(ctx context.Context, preferredID string) (*Session, error) {
	now := time.Now().UTC()

	if preferredID != "" {
		sess, err := s.Get(ctx, preferredID)
		if err != nil {
			return nil, err
		}
		if sess != nil && !sess.Expired(now) && !sess.Status.IsTerminal() {
			return sess, nil
		}
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions
         WHERE status IN (?, ?, ?) AND expires_at > ?
         ORDER BY last_updated_at DESC LIMIT 1`,
		StatusIdle,
		StatusStarting,
		StatusProcessing,
		now.Format(time.RFC3339Nano),
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return sess, nil
}

// Update merges a partial patch into the existing record, bumps
// last_updated_at, and persists the merged record. Fields omitted from the
// patch are never dropped. Overwriting a non-empty job id with a different
// value is rejected.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("update session: %q not found", id)
	}

	if patch.JobID != nil && sess.JobID != "" && *patch.JobID != sess.JobID {
		return nil, fmt.Errorf("update session %q: %w", id, ErrJobIDImmutable)
	}
	patch.Apply(sess, time.Now())

	if err := s.write(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// AppendDiagnostic appends one snapshot to the session's append-only
// diagnostic log and persists the record.
func (s *Store) AppendDiagnostic(ctx context.Context, id string, data json.RawMessage) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("append diagnostic: session %q not found", id)
	}

	entry := DiagnosticEntry{Timestamp: time.Now().UTC(), Data: append(json.RawMessage(nil), data...)}
	sess.Diagnostics = append(sess.Diagnostics, entry)
	sess.LastUpdatedAt = entry.Timestamp
	return s.write(ctx, sess)
}

// Delete removes a session by identifier. Returns whether a record was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListAll returns all sessions ordered newest first.
func (s *Store) ListAll(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SweepExpired removes every record whose expires_at has passed and returns
// the count removed. Safe to run opportunistically.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all sessions.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("clear sessions: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of sessions grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (s *Store) write(ctx context.Context, sess *Session) error {
	sourceJSON, err := json.Marshal(sess.AudioSource)
	if err != nil {
		return fmt.Errorf("marshal audio source: %w", err)
	}
	optionsJSON, err := json.Marshal(sess.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	var diagnosticsJSON any
	if len(sess.Diagnostics) > 0 {
		raw, err := json.Marshal(sess.Diagnostics)
		if err != nil {
			return fmt.Errorf("marshal diagnostics: %w", err)
		}
		diagnosticsJSON = string(raw)
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE sessions
         SET status = ?, job_id = ?, progress = ?, staged_file_path = ?,
             last_updated_at = ?, expires_at = ?,
             audio_source_json = ?, options_json = ?, diagnostics_json = ?,
             result = ?, error_message = ?
         WHERE id = ?`,
		sess.Status,
		nullableString(sess.JobID),
		sess.Progress,
		nullableString(sess.StagedFilePath),
		sess.LastUpdatedAt.Format(time.RFC3339Nano),
		sess.ExpiresAt.Format(time.RFC3339Nano),
		string(sourceJSON),
		string(optionsJSON),
		diagnosticsJSON,
		nullableString(sess.Result),
		nullableString(sess.ErrorMessage),
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

const sessionColumns = "id, status, job_id, progress, staged_file_path, created_at, last_updated_at, expires_at, audio_source_json, options_json, diagnostics_json, result, error_message"

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		id           string
		statusStr    string
		jobID        sql.NullString
		progress     sql.NullFloat64
		stagedPath   sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		expiresRaw   sql.NullString
		sourceJSON   sql.NullString
		optionsJSON  sql.NullString
		diagJSON     sql.NullString
		result       sql.NullString
		errorMessage sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&jobID,
		&progress,
		&stagedPath,
		&createdRaw,
		&updatedRaw,
		&expiresRaw,
		&sourceJSON,
		&optionsJSON,
		&diagJSON,
		&result,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	sess := &Session{
		ID:             id,
		Status:         Status(statusStr),
		JobID:          jobID.String,
		Progress:       progress.Float64,
		StagedFilePath: stagedPath.String,
		Result:         result.String,
		ErrorMessage:   errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		sess.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		sess.LastUpdatedAt = updated
	}
	if expires, err := parseTimeString(expiresRaw.String); err == nil {
		sess.ExpiresAt = expires
	}

	if sourceJSON.Valid && sourceJSON.String != "" {
		if err := json.Unmarshal([]byte(sourceJSON.String), &sess.AudioSource); err != nil {
			return nil, fmt.Errorf("unmarshal audio source: %w", err)
		}
	}
	if optionsJSON.Valid && optionsJSON.String != "" {
		if err := json.Unmarshal([]byte(optionsJSON.String), &sess.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	if diagJSON.Valid && diagJSON.String != "" {
		if err := json.Unmarshal([]byte(diagJSON.String), &sess.Diagnostics); err != nil {
			return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
		}
	}
	return sess, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Pointer is the active-session pointer: a small short-lived record naming
// the session a restarted process should rediscover. The browser analogue is
// a path-scoped cookie; here it is a JSON file in the state directory.
type Pointer struct {
	path string
}

type pointerRecord struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewPointer creates a pointer rooted in the given state directory.
func NewPointer(stateDir string) *Pointer {
	return &Pointer{path: filepath.Join(stateDir, "active_session.json")}
}

// Read returns the pointed-to session id, or "" when the pointer is absent,
// unreadable, or expired.
func (p *Pointer) Read() string {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return ""
	}
	var record pointerRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return ""
	}
	if record.SessionID == "" || !record.ExpiresAt.After(time.Now()) {
		return ""
	}
	return record.SessionID
}

// Write stores the active session id with an expiry.
func (p *Pointer) Write(sessionID string, expiresAt time.Time) error {
	if sessionID == "" {
		return errors.New("session id required")
	}
	record := pointerRecord{SessionID: sessionID, ExpiresAt: expiresAt.UTC()}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session pointer: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("ensure state directory: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		return fmt.Errorf("write session pointer: %w", err)
	}
	return nil
}

// Clear removes the pointer. Missing files are not an error.
func (p *Pointer) Clear() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear session pointer: %w", err)
	}
	return nil
}

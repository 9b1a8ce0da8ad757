package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a transcription session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

var allStatuses = []Status{
	StatusIdle,
	StatusStarting,
	StatusProcessing,
	StatusSucceeded,
	StatusFailed,
	StatusCanceled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusSucceeded: {},
	StatusFailed:    {},
	StatusCanceled:  {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further transitions occur after this status.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// IsActive reports whether the status represents work in flight (or queued).
func (s Status) IsActive() bool {
	switch s {
	case StatusIdle, StatusStarting, StatusProcessing:
		return true
	default:
		return false
	}
}

// AudioSource describes the provenance of a payload, never the raw bytes.
type AudioSource struct {
	Type string `json:"type"` // "file" or "url"
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Options captures the transcription parameters fixed at submission time.
type Options struct {
	Language string `json:"language,omitempty"`
	Diarize  bool   `json:"diarize,omitempty"`
}

// DiagnosticEntry is one append-only snapshot of a provider response,
// retained for troubleshooting. Bounded in practice by job duration.
type DiagnosticEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Session is the unit of durable state: one record per transcription attempt.
type Session struct {
	ID             string
	Status         Status
	JobID          string
	Progress       float64
	StagedFilePath string
	CreatedAt      time.Time
	LastUpdatedAt  time.Time
	ExpiresAt      time.Time
	AudioSource    AudioSource
	Options        Options
	Diagnostics    []DiagnosticEntry
	Result         string
	ErrorMessage   string
}

// Expired reports whether the session is past its retention deadline.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Clone returns a deep copy safe to hand across goroutines.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if len(s.Diagnostics) > 0 {
		cp.Diagnostics = make([]DiagnosticEntry, len(s.Diagnostics))
		copy(cp.Diagnostics, s.Diagnostics)
	}
	return &cp
}

// Patch is a partial update merged over an existing session record. Nil
// fields are left untouched; the store never drops fields omitted from a
// patch.
type Patch struct {
	Status         *Status
	JobID          *string
	Progress       *float64
	StagedFilePath *string
	ExpiresAt      *time.Time
	Result         *string
	ErrorMessage   *string
	AudioSource    *AudioSource
	Options        *Options
}

// Apply merges the patch into sess and bumps LastUpdatedAt. Nil fields are
// left untouched. The job-id immutability rule is enforced by the store, not
// here.
func (p Patch) Apply(sess *Session, now time.Time) {
	if p.Status != nil {
		sess.Status = *p.Status
	}
	if p.JobID != nil {
		sess.JobID = *p.JobID
	}
	if p.Progress != nil {
		sess.Progress = *p.Progress
	}
	if p.StagedFilePath != nil {
		sess.StagedFilePath = *p.StagedFilePath
	}
	if p.ExpiresAt != nil {
		sess.ExpiresAt = p.ExpiresAt.UTC()
	}
	if p.Result != nil {
		sess.Result = *p.Result
	}
	if p.ErrorMessage != nil {
		sess.ErrorMessage = *p.ErrorMessage
	}
	if p.AudioSource != nil {
		sess.AudioSource = *p.AudioSource
	}
	if p.Options != nil {
		sess.Options = *p.Options
	}
	sess.LastUpdatedAt = now.UTC()
}

// NewID allocates a session identifier: creation timestamp plus a random
// suffix, stable for the lifetime of one transcription attempt.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

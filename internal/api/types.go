package api

import (
	"time"

	"scribe/internal/session"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Session describes a transcription session in a transport-friendly format.
type Session struct {
	ID             string      `json:"id"`
	Status         string      `json:"status"`
	JobID          string      `json:"jobId,omitempty"`
	Progress       float64     `json:"progress"`
	Source         AudioSource `json:"source"`
	Options        JobOptions  `json:"options"`
	Result         string      `json:"result,omitempty"`
	ErrorMessage   string      `json:"errorMessage,omitempty"`
	StagedFilePath string      `json:"stagedFilePath,omitempty"`
	CreatedAt      string      `json:"createdAt,omitempty"`
	LastUpdatedAt  string      `json:"lastUpdatedAt,omitempty"`
	ExpiresAt      string      `json:"expiresAt,omitempty"`
}

// AudioSource captures payload provenance without the payload itself.
type AudioSource struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
	URL  string `json:"url,omitempty"`
}

// JobOptions mirrors the transcription parameters fixed at submission.
type JobOptions struct {
	Language string `json:"language,omitempty"`
	Diarize  bool   `json:"diarize,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool     `json:"running"`
	PID           int      `json:"pid"`
	SessionDBPath string   `json:"sessionDbPath"`
	LockFilePath  string   `json:"lockFilePath"`
	Polling       bool     `json:"polling"`
	ActiveSession *Session `json:"activeSession,omitempty"`
}

// SubmitURLRequest is the JSON body for submitting an already-hosted source.
type SubmitURLRequest struct {
	URL      string `json:"url"`
	Language string `json:"language,omitempty"`
	Diarize  bool   `json:"diarize,omitempty"`
}

// SubmitResponse wraps the session created by a submission.
type SubmitResponse struct {
	Session Session `json:"session"`
}

// CancelResponse wraps the session state after a cancel request.
type CancelResponse struct {
	Session *Session `json:"session,omitempty"`
}

// SessionListResponse wraps a collection of sessions.
type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
}

// SessionResponse wraps a single session.
type SessionResponse struct {
	Session Session `json:"session"`
}

// DeleteResponse reports whether a session record was removed.
type DeleteResponse struct {
	Removed bool `json:"removed"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// FromSession converts a store session into its API representation.
func FromSession(sess *session.Session) *Session {
	if sess == nil {
		return nil
	}
	return &Session{
		ID:       sess.ID,
		Status:   string(sess.Status),
		JobID:    sess.JobID,
		Progress: sess.Progress,
		Source: AudioSource{
			Type: sess.AudioSource.Type,
			Name: sess.AudioSource.Name,
			Size: sess.AudioSource.Size,
			URL:  sess.AudioSource.URL,
		},
		Options: JobOptions{
			Language: sess.Options.Language,
			Diarize:  sess.Options.Diarize,
		},
		Result:         sess.Result,
		ErrorMessage:   sess.ErrorMessage,
		StagedFilePath: sess.StagedFilePath,
		CreatedAt:      formatTime(sess.CreatedAt),
		LastUpdatedAt:  formatTime(sess.LastUpdatedAt),
		ExpiresAt:      formatTime(sess.ExpiresAt),
	}
}

// FromSessions converts a slice of store sessions.
func FromSessions(sessions []*session.Session) []Session {
	if len(sessions) == 0 {
		return nil
	}
	out := make([]Session, 0, len(sessions))
	for _, sess := range sessions {
		if converted := FromSession(sess); converted != nil {
			out = append(out, *converted)
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for the failure taxonomy. Each remote-call failure is
// wrapped with one of these so callers can classify without string matching.
var (
	// ErrUnsupportedFormat flags a payload rejected before any network activity.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrStaging flags a failure while uploading a payload to the object store.
	ErrStaging = errors.New("staging failure")
	// ErrSubmission flags a failure while creating the remote job.
	ErrSubmission = errors.New("submission failure")
	// ErrPollingTransport flags a network or parse failure during a status check.
	ErrPollingTransport = errors.New("polling transport error")
	// ErrRemoteFailure flags a job the provider reports as failed.
	ErrRemoteFailure = errors.New("remote job failure")
	// ErrRemoteCanceled flags a job the provider reports as canceled.
	ErrRemoteCanceled = errors.New("remote job canceled")
	// ErrTimeout flags the local attempt bound being exceeded.
	ErrTimeout = errors.New("timeout")
	// ErrPersistence flags the local store being unavailable. Non-fatal: the
	// orchestrator keeps operating in memory.
	ErrPersistence = errors.New("persistence unavailable")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrSubmission
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// UserMessage derives the single user-facing error string for a failure.
// Marker prefixes are stripped; the remaining detail is returned as-is.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{
		ErrUnsupportedFormat, ErrStaging, ErrSubmission, ErrPollingTransport,
		ErrRemoteFailure, ErrRemoteCanceled, ErrTimeout, ErrPersistence,
	} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

package session_test

import (
	"testing"
	"time"

	"scribe/internal/session"
)

func TestPointerRoundTrip(t *testing.T) {
	pointer := session.NewPointer(t.TempDir())

	if got := pointer.Read(); got != "" {
		t.Fatalf("expected empty read before write, got %q", got)
	}

	if err := pointer.Write("1700000000000-abcd1234", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("write pointer: %v", err)
	}
	if got := pointer.Read(); got != "1700000000000-abcd1234" {
		t.Fatalf("unexpected pointer read %q", got)
	}
}

func TestPointerExpiryHidesSession(t *testing.T) {
	pointer := session.NewPointer(t.TempDir())

	if err := pointer.Write("1700000000000-abcd1234", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("write pointer: %v", err)
	}
	if got := pointer.Read(); got != "" {
		t.Fatalf("expected expired pointer to read empty, got %q", got)
	}
}

func TestPointerClearIsTolerant(t *testing.T) {
	pointer := session.NewPointer(t.TempDir())

	if err := pointer.Clear(); err != nil {
		t.Fatalf("clear missing pointer: %v", err)
	}
	if err := pointer.Write("1700000000000-abcd1234", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("write pointer: %v", err)
	}
	if err := pointer.Clear(); err != nil {
		t.Fatalf("clear pointer: %v", err)
	}
	if got := pointer.Read(); got != "" {
		t.Fatalf("expected empty read after clear, got %q", got)
	}
}

package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/session"
)

func newStore(t *testing.T) *session.Store {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()

	store, err := session.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func create(t *testing.T, store *session.Store, opts session.CreateOptions) *session.Session {
	t.Helper()
	sess, err := store.Create(context.Background(),
		session.AudioSource{Type: "file", Name: "clip.mp3", Size: 1024},
		session.Options{Language: "en"},
		opts,
	)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func strPtr(s string) *string                    { return &s }
func f64Ptr(f float64) *float64                  { return &f }
func statusPtr(s session.Status) *session.Status { return &s }

func TestUpdateMergePreservesUnpatchedFields(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sess := create(t, store, session.CreateOptions{})

	if _, err := store.Update(ctx, sess.ID, session.Patch{JobID: strPtr("job-9")}); err != nil {
		t.Fatalf("patch job id: %v", err)
	}
	if _, err := store.Update(ctx, sess.ID, session.Patch{
		Status:   statusPtr(session.StatusProcessing),
		Progress: f64Ptr(42),
	}); err != nil {
		t.Fatalf("patch status: %v", err)
	}
	if _, err := store.Update(ctx, sess.ID, session.Patch{Result: strPtr("partial text")}); err != nil {
		t.Fatalf("patch result: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.JobID != "job-9" {
		t.Fatalf("job id lost across patches: %q", got.JobID)
	}
	if got.Status != session.StatusProcessing || got.Progress != 42 {
		t.Fatalf("status patch lost: %s %v", got.Status, got.Progress)
	}
	if got.Result != "partial text" {
		t.Fatalf("result patch lost: %q", got.Result)
	}
	if got.AudioSource.Name != "clip.mp3" || got.Options.Language != "en" {
		t.Fatalf("creation fields dropped: %+v %+v", got.AudioSource, got.Options)
	}
}

func TestUpdateRejectsJobIDChange(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sess := create(t, store, session.CreateOptions{})

	if _, err := store.Update(ctx, sess.ID, session.Patch{JobID: strPtr("job-1")}); err != nil {
		t.Fatalf("set job id: %v", err)
	}
	// Writing the same value again is allowed.
	if _, err := store.Update(ctx, sess.ID, session.Patch{JobID: strPtr("job-1")}); err != nil {
		t.Fatalf("rewrite same job id: %v", err)
	}
	_, err := store.Update(ctx, sess.ID, session.Patch{JobID: strPtr("job-2")})
	if !errors.Is(err, session.ErrJobIDImmutable) {
		t.Fatalf("expected job id immutability error, got %v", err)
	}
}

func TestCreateReusesPointerIDOnlyWhenAbsent(t *testing.T) {
	store := newStore(t)

	reused := create(t, store, session.CreateOptions{ReuseID: "1700000000000-cafe0123"})
	if reused.ID != "1700000000000-cafe0123" {
		t.Fatalf("expected pointer id reused, got %s", reused.ID)
	}

	fresh := create(t, store, session.CreateOptions{ReuseID: reused.ID})
	if fresh.ID == reused.ID {
		t.Fatal("expected a fresh id when the pointer id is already stored")
	}
}

func TestGetActivePrefersPointerThenRecency(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	older := create(t, store, session.CreateOptions{})
	time.Sleep(5 * time.Millisecond)
	newer := create(t, store, session.CreateOptions{})

	// Pointer wins while its session is resumable.
	got, err := store.GetActive(ctx, older.ID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got == nil || got.ID != older.ID {
		t.Fatalf("expected pointer session %s, got %+v", older.ID, got)
	}

	// A terminal pointer session falls back to the most recently updated
	// active one.
	if _, err := store.Update(ctx, older.ID, session.Patch{Status: statusPtr(session.StatusFailed)}); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, err = store.GetActive(ctx, older.ID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got == nil || got.ID != newer.ID {
		t.Fatalf("expected fallback to %s, got %+v", newer.ID, got)
	}

	// No pointer at all behaves the same.
	got, err = store.GetActive(ctx, "")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got == nil || got.ID != newer.ID {
		t.Fatalf("expected most recent active session, got %+v", got)
	}
}

func TestSweepExpiredRemovesOnlyExpired(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	expired1 := create(t, store, session.CreateOptions{TTL: time.Hour})
	expired2 := create(t, store, session.CreateOptions{TTL: time.Hour})
	kept := create(t, store, session.CreateOptions{TTL: 48 * time.Hour})

	past := time.Now().UTC().Add(-time.Minute)
	for _, id := range []string{expired1.ID, expired2.ID} {
		if _, err := store.Update(ctx, id, session.Patch{ExpiresAt: &past}); err != nil {
			t.Fatalf("expire session: %v", err)
		}
	}

	removed, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	remaining, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != kept.ID {
		t.Fatalf("expected only %s to remain, got %d sessions", kept.ID, len(remaining))
	}
}

func TestAppendDiagnosticAccumulates(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sess := create(t, store, session.CreateOptions{})

	for i := 0; i < 3; i++ {
		if err := store.AppendDiagnostic(ctx, sess.ID, json.RawMessage(`{"status":"processing"}`)); err != nil {
			t.Fatalf("append diagnostic: %v", err)
		}
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Diagnostics) != 3 {
		t.Fatalf("expected 3 diagnostic entries, got %d", len(got.Diagnostics))
	}
	for _, entry := range got.Diagnostics {
		if entry.Timestamp.IsZero() || len(entry.Data) == 0 {
			t.Fatalf("incomplete diagnostic entry: %+v", entry)
		}
	}
}

func TestDeleteReportsPresence(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sess := create(t, store, session.CreateOptions{})

	removed, err := store.Delete(ctx, sess.ID)
	if err != nil || !removed {
		t.Fatalf("expected delete to remove: %v %v", removed, err)
	}
	removed, err = store.Delete(ctx, sess.ID)
	if err != nil || removed {
		t.Fatalf("expected repeat delete to be a miss: %v %v", removed, err)
	}
}

func TestStatsGroupsByStatus(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	create(t, store, session.CreateOptions{})
	done := create(t, store, session.CreateOptions{})
	if _, err := store.Update(ctx, done.ID, session.Patch{Status: statusPtr(session.StatusSucceeded)}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[session.StatusIdle] != 1 || stats[session.StatusSucceeded] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

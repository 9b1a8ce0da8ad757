package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/cleanup"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/poller"
	"scribe/internal/services"
	"scribe/internal/services/transcriber"
	"scribe/internal/session"
	"scribe/internal/storage"
	"scribe/internal/upload"
)

// Payload is one submission request. Exactly one of Data and URL is set:
// Data carries a local file (with Filename, ContentType, and Size metadata),
// URL names an already-hosted audio source the provider fetches itself.
type Payload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        io.Reader
	URL         string
	Options     session.Options
}

// Orchestrator composes upload strategy selection, job submission, bounded
// polling, durable session state, and staged-file cleanup behind a small
// lifecycle API. One transcription runs at a time; submitting a new one
// supersedes whatever was in flight.
type Orchestrator struct {
	cfg      *config.Config
	store    *session.Store
	pointer  *session.Pointer
	selector *upload.Selector
	client   transcriber.API
	stager   storage.Stager
	poller   *poller.Poller
	cleaner  *cleanup.Coordinator
	logger   *slog.Logger

	mu      sync.Mutex
	current *session.Session
}

// New wires an orchestrator from its collaborators. store may be nil when the
// session database could not be opened; the orchestrator then runs from
// memory only and every lifecycle step still works. stager may be nil when
// staging is not configured, which caps submissions at the inline threshold.
func New(cfg *config.Config, store *session.Store, client transcriber.API, stager storage.Stager, logger *slog.Logger) *Orchestrator {
	policy := poller.Policy{
		Interval:        time.Duration(cfg.Polling.IntervalMS) * time.Millisecond,
		MaxAttempts:     cfg.Polling.MaxAttempts,
		ProgressFloor:   cfg.Polling.ProgressFloor,
		ProgressCeiling: cfg.Polling.ProgressCeiling,
	}
	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		pointer:  session.NewPointer(cfg.Paths.StateDir),
		selector: upload.NewSelector(cfg.Upload.InlineThresholdBytes, cfg.Upload.Formats),
		client:   client,
		stager:   stager,
		poller:   poller.New(client, policy, logger),
		cleaner:  cleanup.New(stager, logger),
		logger:   logging.NewComponentLogger(logger, "orchestrator"),
	}
	if store == nil {
		o.logger.Warn("session store unavailable, running without persistence")
	}
	return o
}

// Selector exposes the upload strategy selector, mainly for surfacing the
// configured threshold in status output.
func (o *Orchestrator) Selector() *upload.Selector {
	return o.selector
}

// Submit validates the payload, creates a durable session, transmits the
// audio via the selected strategy, and starts polling the resulting job.
// The returned session reflects state as of submission; polling continues in
// the background.
func (o *Orchestrator) Submit(ctx context.Context, payload Payload) (*session.Session, error) {
	if payload.URL == "" {
		// Reject unsupported formats before any network traffic.
		if err := o.selector.Validate(payload.Filename, payload.ContentType); err != nil {
			return nil, err
		}
		if payload.Data == nil {
			return nil, errors.New("submit: file payload requires data")
		}
	}

	lang, err := transcriber.NormalizeLanguage(payload.Options.Language)
	if err != nil {
		return nil, err
	}
	payload.Options.Language = lang

	// A new submission supersedes whatever run is still in flight.
	o.poller.Stop()

	sess, err := o.createSession(ctx, payload)
	if err != nil {
		return nil, err
	}
	if err := o.pointer.Write(sess.ID, sess.ExpiresAt); err != nil {
		o.logger.Warn("active session pointer write failed", logging.Error(err))
	}

	starting := session.StatusStarting
	sess = o.persist(ctx, sess.ID, session.Patch{Status: &starting})

	req := transcriber.SubmitRequest{
		Options: transcriber.SubmitOptions{
			Language: payload.Options.Language,
			Diarize:  payload.Options.Diarize,
		},
	}

	var stagedPath string
	switch {
	case payload.URL != "":
		req.AudioURL = payload.URL
	case o.selector.Select(payload.Size) == upload.StrategyStaged:
		staged, stageErr := o.stage(ctx, sess.ID, payload)
		if stageErr != nil {
			o.fail(ctx, sess.ID, services.UserMessage(stageErr))
			return nil, stageErr
		}
		stagedPath = staged.Path
		req.AudioURL = staged.URL
		sess = o.persist(ctx, sess.ID, session.Patch{StagedFilePath: &stagedPath})
	default:
		encoded, encodeErr := encodeInline(payload.Data, payload.Size)
		if encodeErr != nil {
			o.fail(ctx, sess.ID, "could not read the audio payload")
			return nil, services.Wrap(nil, "orchestrator", "encode", "read audio payload", encodeErr)
		}
		req.AudioData = encoded
	}

	jobID, err := o.client.Submit(ctx, req)
	if err != nil {
		wrapped := services.Wrap(services.ErrSubmission, "orchestrator", "submit", "create transcription job", err)
		o.fail(ctx, sess.ID, services.UserMessage(wrapped))
		o.cleaner.CleanupAsync(stagedPath)
		return nil, wrapped
	}

	processing := session.StatusProcessing
	floor := o.cfg.Polling.ProgressFloor
	sess = o.persist(ctx, sess.ID, session.Patch{
		Status:   &processing,
		JobID:    &jobID,
		Progress: &floor,
	})

	o.logger.Info("transcription job submitted",
		logging.String(logging.FieldSessionID, sess.ID),
		logging.String(logging.FieldJobID, jobID),
		logging.String("strategy", string(o.strategyFor(payload))),
	)

	o.watch(sess.ID, jobID, stagedPath)
	return sess.Clone(), nil
}

// Resume picks up the session a previous process left active. When the
// session already has a remote job, polling restarts against it. An active
// session that never reached submission cannot recover and is marked failed.
// Returns nil when there is nothing to resume.
func (o *Orchestrator) Resume(ctx context.Context) (*session.Session, error) {
	if o.store == nil {
		return nil, nil
	}
	sess, err := o.store.GetActive(ctx, o.pointer.Read())
	if err != nil {
		return nil, fmt.Errorf("resolve active session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}

	o.setCurrent(sess)
	if err := o.pointer.Write(sess.ID, sess.ExpiresAt); err != nil {
		o.logger.Warn("active session pointer write failed", logging.Error(err))
	}

	if sess.JobID == "" {
		sess = o.fail(ctx, sess.ID, "interrupted before the job was submitted")
		return sess.Clone(), nil
	}

	o.logger.Info("resuming transcription session",
		logging.String(logging.FieldSessionID, sess.ID),
		logging.String(logging.FieldJobID, sess.JobID),
	)
	o.watch(sess.ID, sess.JobID, sess.StagedFilePath)
	return sess.Clone(), nil
}

// Cancel stops polling and marks the active session canceled. Calling it
// with no active work, or repeatedly, is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context) (*session.Session, error) {
	o.poller.Stop()

	sess, err := o.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Status.IsTerminal() {
		return sess, nil
	}

	canceled := session.StatusCanceled
	zero := 0.0
	msg := "canceled by user"
	updated := o.persist(ctx, sess.ID, session.Patch{
		Status:       &canceled,
		Progress:     &zero,
		ErrorMessage: &msg,
	})
	o.cleaner.CleanupAsync(sess.StagedFilePath)

	o.logger.Info("transcription canceled", logging.String(logging.FieldSessionID, sess.ID))
	return updated.Clone(), nil
}

// Reset cancels any active work and clears the active-session pointer so the
// next submission starts from a blank slate. Session records stay in the
// store until they expire.
func (o *Orchestrator) Reset(ctx context.Context) error {
	if _, err := o.Cancel(ctx); err != nil {
		return err
	}
	if err := o.pointer.Clear(); err != nil {
		return err
	}
	o.mu.Lock()
	o.current = nil
	o.mu.Unlock()
	return nil
}

// Snapshot returns the session the orchestrator currently considers active,
// preferring durable state over the in-memory copy. Returns nil when no
// session is known.
func (o *Orchestrator) Snapshot(ctx context.Context) (*session.Session, error) {
	o.mu.Lock()
	mem := o.current.Clone()
	o.mu.Unlock()

	if o.store == nil {
		return mem, nil
	}

	id := ""
	if mem != nil {
		id = mem.ID
	} else if pointed := o.pointer.Read(); pointed != "" {
		id = pointed
	}
	if id != "" {
		sess, err := o.store.Get(ctx, id)
		if err != nil {
			o.warnPersistence("get", err)
			return mem, nil
		}
		if sess != nil {
			return sess, nil
		}
		return mem, nil
	}
	sess, err := o.store.GetActive(ctx, "")
	if err != nil {
		o.warnPersistence("get_active", err)
		return nil, nil
	}
	return sess, nil
}

// Polling reports whether a poll run is in flight.
func (o *Orchestrator) Polling() bool {
	return o.poller.Active()
}

// Close stops polling and drains outstanding cleanup work.
func (o *Orchestrator) Close() {
	o.poller.Stop()
	o.cleaner.Wait()
}

func (o *Orchestrator) createSession(ctx context.Context, payload Payload) (*session.Session, error) {
	source := session.AudioSource{Type: "file", Name: payload.Filename, Size: payload.Size}
	if payload.URL != "" {
		source = session.AudioSource{Type: "url", URL: payload.URL}
	}
	opts := session.CreateOptions{
		ReuseID: o.pointer.Read(),
		TTL:     time.Duration(o.cfg.Session.TTLHours) * time.Hour,
	}

	if o.store != nil {
		sess, err := o.store.Create(ctx, source, payload.Options, opts)
		if err == nil {
			o.setCurrent(sess)
			return sess, nil
		}
		o.warnPersistence("create", err)
	}

	now := time.Now().UTC()
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	sess := &session.Session{
		ID:            session.NewID(now),
		Status:        session.StatusIdle,
		CreatedAt:     now,
		LastUpdatedAt: now,
		ExpiresAt:     now.Add(ttl),
		AudioSource:   source,
		Options:       payload.Options,
	}
	o.setCurrent(sess)
	return sess, nil
}

func (o *Orchestrator) stage(ctx context.Context, sessionID string, payload Payload) (storage.StagedObject, error) {
	if o.stager == nil {
		return storage.StagedObject{}, services.Wrap(services.ErrStaging, "orchestrator", "stage",
			fmt.Sprintf("file exceeds the %d byte inline limit and no staging storage is configured", o.selector.Threshold()), nil)
	}
	key := storage.StagingKey(sessionID, payload.Filename)
	staged, err := o.stager.Stage(ctx, key, payload.Data, payload.Size, payload.ContentType)
	if err != nil {
		return storage.StagedObject{}, services.Wrap(services.ErrStaging, "orchestrator", "stage", "upload to staging storage", err)
	}
	return staged, nil
}

// watch starts a polling run whose events drive session state transitions.
func (o *Orchestrator) watch(sessionID, jobID, stagedPath string) {
	o.poller.Start(context.Background(), jobID, func(ev poller.Event) {
		o.handleEvent(sessionID, stagedPath, ev)
	})
}

func (o *Orchestrator) handleEvent(sessionID, stagedPath string, ev poller.Event) {
	ctx := services.WithSessionID(context.Background(), sessionID)

	if len(ev.Snapshot) > 0 && o.store != nil {
		if err := o.store.AppendDiagnostic(ctx, sessionID, ev.Snapshot); err != nil {
			o.warnPersistence("append_diagnostic", err)
		}
	}

	switch ev.Type {
	case poller.EventProgress:
		progress := ev.Progress
		// Heuristic progress never moves backwards.
		o.mu.Lock()
		if o.current != nil && o.current.ID == sessionID && o.current.Progress > progress {
			progress = o.current.Progress
		}
		o.mu.Unlock()
		status := ev.Status
		o.persist(ctx, sessionID, session.Patch{Status: &status, Progress: &progress})

	case poller.EventSuccess:
		succeeded := session.StatusSucceeded
		full := 100.0
		result := transcriber.ExtractTranscript(ev.Result)
		o.persist(ctx, sessionID, session.Patch{
			Status:   &succeeded,
			Progress: &full,
			Result:   &result,
		})
		o.cleaner.CleanupAsync(stagedPath)
		o.logger.Info("transcription succeeded", logging.String(logging.FieldSessionID, sessionID))

	case poller.EventError:
		status := ev.Status
		if !status.IsTerminal() {
			status = session.StatusFailed
		}
		zero := 0.0
		msg := ev.Message
		o.persist(ctx, sessionID, session.Patch{
			Status:       &status,
			Progress:     &zero,
			ErrorMessage: &msg,
		})
		o.cleaner.CleanupAsync(stagedPath)
		o.logger.Warn("transcription ended without a result",
			logging.String(logging.FieldSessionID, sessionID),
			logging.String("status", string(status)),
			logging.String("reason", ev.Message),
		)
	}
}

func (o *Orchestrator) fail(ctx context.Context, sessionID, message string) *session.Session {
	failed := session.StatusFailed
	zero := 0.0
	return o.persist(ctx, sessionID, session.Patch{
		Status:       &failed,
		Progress:     &zero,
		ErrorMessage: &message,
	})
}

// persist applies the patch to the in-memory session and, when a store is
// available, to the durable record. Store failures are logged and never
// interrupt the transcription flow.
func (o *Orchestrator) persist(ctx context.Context, sessionID string, patch session.Patch) *session.Session {
	o.mu.Lock()
	if o.current != nil && o.current.ID == sessionID {
		patch.Apply(o.current, time.Now())
	}
	mem := o.current.Clone()
	o.mu.Unlock()

	if o.store == nil {
		return mem
	}
	updated, err := o.store.Update(ctx, sessionID, patch)
	if err != nil {
		o.warnPersistence("update", err)
		return mem
	}
	o.setCurrent(updated)
	return updated
}

func (o *Orchestrator) setCurrent(sess *session.Session) {
	o.mu.Lock()
	o.current = sess.Clone()
	o.mu.Unlock()
}

func (o *Orchestrator) warnPersistence(operation string, err error) {
	wrapped := services.Wrap(services.ErrPersistence, "orchestrator", operation, "session store operation failed", err)
	o.logger.Warn("continuing without durable state", logging.Error(wrapped))
}

func (o *Orchestrator) strategyFor(payload Payload) upload.Strategy {
	if payload.URL != "" {
		return upload.StrategyInline
	}
	return o.selector.Select(payload.Size)
}

func encodeInline(r io.Reader, size int64) (string, error) {
	if size > 0 {
		r = io.LimitReader(r, size)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

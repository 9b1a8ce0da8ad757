package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/orchestrator"
	"scribe/internal/session"
)

// Daemon coordinates the transcription orchestrator, the session expiry
// sweeper, and the HTTP API, and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *session.Store
	orch   *orchestrator.Orchestrator
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	sweepDone chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	SessionDBPath string
	LockFilePath  string
	Polling       bool
	Active        *session.Session
}

// New constructs a daemon with initialized dependencies. store may be nil
// when the session database could not be opened.
func New(cfg *config.Config, store *session.Store, orch *orchestrator.Orchestrator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || orch == nil || logger == nil {
		return nil, errors.New("daemon requires config, orchestrator, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "scribed.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		orch:     orch,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the instance lock, resumes any interrupted session, and
// launches the sweeper and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scribe daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.sweepDone = make(chan struct{})

	if resumed, err := d.orch.Resume(d.ctx); err != nil {
		d.logger.Warn("session resume failed", logging.Error(err))
	} else if resumed != nil {
		d.logger.Info("resumed session from previous run",
			logging.String(logging.FieldSessionID, resumed.ID),
			logging.String("status", string(resumed.Status)),
		)
	}

	go d.sweepLoop(d.ctx)

	if err := d.api.start(d.ctx); err != nil {
		d.cancel()
		<-d.sweepDone
		_ = d.lock.Unlock()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("scribe daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels background work, drains the orchestrator, and releases the
// instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.orch.Close()
	if d.sweepDone != nil {
		<-d.sweepDone
		d.sweepDone = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("scribe daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Submit hands a payload to the orchestrator.
func (d *Daemon) Submit(ctx context.Context, payload orchestrator.Payload) (*session.Session, error) {
	return d.orch.Submit(ctx, payload)
}

// CancelActive stops the in-flight transcription, if any.
func (d *Daemon) CancelActive(ctx context.Context) (*session.Session, error) {
	return d.orch.Cancel(ctx)
}

// ActiveSession returns the session the orchestrator considers current.
func (d *Daemon) ActiveSession(ctx context.Context) (*session.Session, error) {
	return d.orch.Snapshot(ctx)
}

// ListSessions returns all stored sessions, newest first.
func (d *Daemon) ListSessions(ctx context.Context) ([]*session.Session, error) {
	if d.store == nil {
		return nil, errors.New("session store unavailable")
	}
	return d.store.ListAll(ctx)
}

// GetSession fetches one stored session. Returns nil when not found.
func (d *Daemon) GetSession(ctx context.Context, id string) (*session.Session, error) {
	if d.store == nil {
		return nil, errors.New("session store unavailable")
	}
	return d.store.Get(ctx, id)
}

// DeleteSession removes a session record.
func (d *Daemon) DeleteSession(ctx context.Context, id string) (bool, error) {
	if d.store == nil {
		return false, errors.New("session store unavailable")
	}
	return d.store.Delete(ctx, id)
}

// APIAddr returns the bound HTTP API address once the daemon is running.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	active, err := d.orch.Snapshot(ctx)
	if err != nil {
		d.logger.Warn("status snapshot failed", logging.Error(err))
	}
	dbPath := ""
	if d.store != nil {
		dbPath = d.store.Path()
	}
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		SessionDBPath: dbPath,
		LockFilePath:  d.lockPath,
		Polling:       d.orch.Polling(),
		Active:        active,
	}
}

// sweepLoop periodically removes expired session records. Expired staged
// files are already cleaned at terminal transitions; the sweep only trims
// the store.
func (d *Daemon) sweepLoop(ctx context.Context) {
	defer close(d.sweepDone)

	interval := time.Duration(d.cfg.Session.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	d.sweepOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepOnce(ctx)
		}
	}
}

func (d *Daemon) sweepOnce(ctx context.Context) {
	if d.store == nil {
		return
	}
	removed, err := d.store.SweepExpired(ctx)
	if err != nil {
		d.logger.Warn("session sweep failed", logging.Error(err))
		return
	}
	if removed > 0 {
		d.logger.Info("expired sessions removed", logging.Int64("count", removed))
	}
}

package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/services/transcriber"
	"scribe/internal/session"
)

// Policy bounds a polling run. Progress advances linearly from the floor
// toward the ceiling so the caller always sees movement even when the remote
// API reports nothing but "processing".
type Policy struct {
	Interval        time.Duration
	MaxAttempts     int
	ProgressFloor   float64
	ProgressCeiling float64
	InitialDelay    time.Duration
}

// Increment is the per-attempt progress step.
func (p Policy) Increment() float64 {
	if p.MaxAttempts <= 0 {
		return 0
	}
	return (p.ProgressCeiling - p.ProgressFloor) / float64(p.MaxAttempts)
}

func (p Policy) normalized() Policy {
	if p.Interval <= 0 {
		p.Interval = 1200 * time.Millisecond
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 150
	}
	if p.ProgressCeiling <= p.ProgressFloor {
		p.ProgressFloor = 5
		p.ProgressCeiling = 98
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 10 * time.Millisecond
	}
	return p
}

// EventType discriminates poll run notifications.
type EventType string

const (
	EventProgress EventType = "progress"
	EventSuccess  EventType = "success"
	EventError    EventType = "error"
)

// Event is a single notification from a polling run. Which fields are set
// depends on Type: progress carries Status and Progress, success carries
// Result, error carries Status (failed or canceled), Message, and a
// classified Err. Snapshot holds the raw remote response body when one was
// received.
type Event struct {
	Type     EventType
	Status   session.Status
	Progress float64
	Result   json.RawMessage
	Message  string
	Err      error
	Snapshot json.RawMessage
}

// StatusClient fetches remote job state.
type StatusClient interface {
	Status(ctx context.Context, jobID string) (transcriber.JobStatus, error)
}

// Handler receives events from a polling run. Calls are serialized.
type Handler func(Event)

// Poller drives bounded polling of a remote transcription job. At most one
// run is active at a time; starting a new run stops the previous one.
type Poller struct {
	client StatusClient
	policy Policy
	logger *slog.Logger

	mu  sync.Mutex
	run *run
}

type run struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	terminal sync.Once
}

// New builds a poller around the given status client.
func New(client StatusClient, policy Policy, logger *slog.Logger) *Poller {
	return &Poller{
		client: client,
		policy: policy.normalized(),
		logger: logging.NewComponentLogger(logger, "poller"),
	}
}

// Start begins polling jobID, replacing any run already in flight. Events
// are delivered to handler until a terminal event fires or Stop is called.
// Exactly one terminal event (success or error) is emitted per run unless
// the run is stopped first.
func (p *Poller) Start(ctx context.Context, jobID string, handler Handler) {
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{jobID: jobID, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	prev := p.run
	p.run = r
	p.mu.Unlock()
	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	go p.loop(runCtx, r, handler)
}

// Stop cancels the active run, if any, and waits for it to exit. Safe to
// call repeatedly.
func (p *Poller) Stop() {
	p.mu.Lock()
	r := p.run
	p.run = nil
	p.mu.Unlock()
	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Active reports whether a polling run is currently in flight.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil
}

func (p *Poller) loop(ctx context.Context, r *run, handler Handler) {
	defer close(r.done)
	defer p.clear(r)

	emit := func(ev Event) bool {
		// A cancelled run must not deliver late responses.
		if ctx.Err() != nil {
			return false
		}
		handler(ev)
		return true
	}
	emitTerminal := func(ev Event) {
		r.terminal.Do(func() { emit(ev) })
	}

	timer := time.NewTimer(p.policy.InitialDelay)
	defer timer.Stop()

	progress := p.policy.ProgressFloor
	step := p.policy.Increment()

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		status, err := p.client.Status(ctx, r.jobID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			// A transport failure during a status check ends the run.
			wrapped := services.Wrap(services.ErrPollingTransport, "poller", "poll", "status check failed", err)
			p.logger.Warn("status poll failed",
				logging.String(logging.FieldJobID, r.jobID),
				logging.Int("attempt", attempt),
				logging.Error(wrapped),
			)
			emitTerminal(Event{
				Type:    EventError,
				Status:  session.StatusFailed,
				Message: err.Error(),
				Err:     wrapped,
			})
			return
		}

		mapped := transcriber.MapStatus(status.Status)
		switch mapped {
		case session.StatusSucceeded:
			emitTerminal(Event{
				Type:     EventSuccess,
				Status:   session.StatusSucceeded,
				Progress: 100,
				Result:   status.Output,
				Snapshot: status.Raw,
			})
			return
		case session.StatusFailed, session.StatusCanceled:
			msg := status.Error
			if msg == "" {
				msg = fmt.Sprintf("remote job ended with status %q", status.Status)
			}
			marker := services.ErrRemoteFailure
			if mapped == session.StatusCanceled {
				marker = services.ErrRemoteCanceled
			}
			emitTerminal(Event{
				Type:     EventError,
				Status:   mapped,
				Message:  msg,
				Err:      services.Wrap(marker, "poller", "poll", msg, nil),
				Snapshot: status.Raw,
			})
			return
		}

		if progress < p.policy.ProgressCeiling {
			progress += step
			if progress > p.policy.ProgressCeiling {
				progress = p.policy.ProgressCeiling
			}
		}
		if !emit(Event{
			Type:     EventProgress,
			Status:   mapped,
			Progress: progress,
			Snapshot: status.Raw,
		}) {
			return
		}

		timer.Reset(p.policy.Interval)
	}

	err := services.Wrap(services.ErrTimeout, "poller", "poll",
		fmt.Sprintf("transcription timed out after %d polling attempts", p.policy.MaxAttempts), nil)
	emitTerminal(Event{
		Type:    EventError,
		Status:  session.StatusFailed,
		Message: services.UserMessage(err),
		Err:     err,
	})
}

func (p *Poller) clear(r *run) {
	p.mu.Lock()
	if p.run == r {
		p.run = nil
	}
	p.mu.Unlock()
}

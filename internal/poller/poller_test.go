package poller_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"scribe/internal/logging"
	"scribe/internal/poller"
	"scribe/internal/services"
	"scribe/internal/services/transcriber"
	"scribe/internal/session"
)

type scriptedClient struct {
	mu        sync.Mutex
	responses []transcriber.JobStatus
	errs      []error
	calls     int
}

func (c *scriptedClient) Status(_ context.Context, _ string) (transcriber.JobStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.calls
	c.calls++
	if idx < len(c.errs) && c.errs[idx] != nil {
		return transcriber.JobStatus{}, c.errs[idx]
	}
	if idx < len(c.responses) {
		return c.responses[idx], nil
	}
	// Past the script the job stays in processing.
	return transcriber.JobStatus{Status: "processing"}, nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type eventCollector struct {
	mu     sync.Mutex
	events []poller.Event
	done   chan struct{}
	once   sync.Once
}

func newEventCollector() *eventCollector {
	return &eventCollector{done: make(chan struct{})}
}

func (c *eventCollector) handle(ev poller.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	if ev.Type == poller.EventSuccess || ev.Type == poller.EventError {
		c.once.Do(func() { close(c.done) })
	}
}

func (c *eventCollector) waitTerminal(t *testing.T) poller.Event {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func (c *eventCollector) snapshot() []poller.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]poller.Event, len(c.events))
	copy(out, c.events)
	return out
}

func fastPolicy(maxAttempts int) poller.Policy {
	return poller.Policy{
		Interval:        2 * time.Millisecond,
		MaxAttempts:     maxAttempts,
		ProgressFloor:   5,
		ProgressCeiling: 98,
		InitialDelay:    time.Millisecond,
	}
}

func TestPollerSuccessDeliversResultAtFullProgress(t *testing.T) {
	client := &scriptedClient{
		responses: []transcriber.JobStatus{
			{Status: "processing"},
			{Status: "processing"},
			{Status: "succeeded", Output: json.RawMessage(`{"text":"hello world"}`)},
		},
	}
	collector := newEventCollector()
	p := poller.New(client, fastPolicy(50), logging.NewNop())

	p.Start(context.Background(), "job-1", collector.handle)
	terminal := collector.waitTerminal(t)

	if terminal.Type != poller.EventSuccess {
		t.Fatalf("expected success event, got %s", terminal.Type)
	}
	if terminal.Progress != 100 {
		t.Fatalf("expected progress 100, got %v", terminal.Progress)
	}
	if string(terminal.Result) != `{"text":"hello world"}` {
		t.Fatalf("unexpected result payload: %s", terminal.Result)
	}
}

func TestPollerProgressIsMonotonicAndBounded(t *testing.T) {
	client := &scriptedClient{
		responses: []transcriber.JobStatus{
			{Status: "processing"},
			{Status: "processing"},
			{Status: "processing"},
			{Status: "processing"},
			{Status: "succeeded", Output: json.RawMessage(`"ok"`)},
		},
	}
	collector := newEventCollector()
	p := poller.New(client, fastPolicy(50), logging.NewNop())

	p.Start(context.Background(), "job-2", collector.handle)
	collector.waitTerminal(t)

	last := 0.0
	for _, ev := range collector.snapshot() {
		if ev.Type != poller.EventProgress {
			continue
		}
		if ev.Progress < last {
			t.Fatalf("progress regressed from %v to %v", last, ev.Progress)
		}
		if ev.Progress > 98 {
			t.Fatalf("heuristic progress exceeded ceiling: %v", ev.Progress)
		}
		last = ev.Progress
	}
	if last <= 5 {
		t.Fatalf("expected progress to advance past the floor, got %v", last)
	}
}

func TestPollerRemoteFailureEmitsErrorWithMessage(t *testing.T) {
	client := &scriptedClient{
		responses: []transcriber.JobStatus{
			{Status: "processing"},
			{Status: "failed", Error: "audio could not be decoded"},
		},
	}
	collector := newEventCollector()
	p := poller.New(client, fastPolicy(50), logging.NewNop())

	p.Start(context.Background(), "job-3", collector.handle)
	terminal := collector.waitTerminal(t)

	if terminal.Type != poller.EventError {
		t.Fatalf("expected error event, got %s", terminal.Type)
	}
	if terminal.Status != session.StatusFailed {
		t.Fatalf("expected failed status, got %s", terminal.Status)
	}
	if terminal.Message != "audio could not be decoded" {
		t.Fatalf("unexpected message: %q", terminal.Message)
	}
	if !errors.Is(terminal.Err, services.ErrRemoteFailure) {
		t.Fatalf("expected remote failure classification, got %v", terminal.Err)
	}
}

func TestPollerRemoteCancellationEmitsCanceledStatus(t *testing.T) {
	client := &scriptedClient{
		responses: []transcriber.JobStatus{
			{Status: "processing"},
			{Status: "canceled"},
		},
	}
	collector := newEventCollector()
	p := poller.New(client, fastPolicy(50), logging.NewNop())

	p.Start(context.Background(), "job-7", collector.handle)
	terminal := collector.waitTerminal(t)

	if terminal.Type != poller.EventError {
		t.Fatalf("expected error event, got %s", terminal.Type)
	}
	if terminal.Status != session.StatusCanceled {
		t.Fatalf("expected canceled status, got %s", terminal.Status)
	}
	if !errors.Is(terminal.Err, services.ErrRemoteCanceled) {
		t.Fatalf("expected remote cancellation classification, got %v", terminal.Err)
	}
}

func TestPollerExhaustsAttemptsWithTimeoutError(t *testing.T) {
	client := &scriptedClient{} // always processing
	collector := newEventCollector()
	p := poller.New(client, fastPolicy(4), logging.NewNop())

	p.Start(context.Background(), "job-4", collector.handle)
	terminal := collector.waitTerminal(t)

	if terminal.Type != poller.EventError {
		t.Fatalf("expected error event, got %s", terminal.Type)
	}
	if !strings.Contains(terminal.Message, "timed out") {
		t.Fatalf("expected timeout message, got %q", terminal.Message)
	}
	if !errors.Is(terminal.Err, services.ErrTimeout) {
		t.Fatalf("expected timeout classification, got %v", terminal.Err)
	}
	if client.callCount() != 4 {
		t.Fatalf("expected exactly 4 status calls, got %d", client.callCount())
	}
}

func TestPollerTransportErrorFailsImmediately(t *testing.T) {
	client := &scriptedClient{
		errs: []error{errors.New("connection refused")},
	}
	collector := newEventCollector()
	p := poller.New(client, fastPolicy(5), logging.NewNop())

	p.Start(context.Background(), "job-5", collector.handle)
	terminal := collector.waitTerminal(t)

	if terminal.Type != poller.EventError {
		t.Fatalf("expected error event, got %s", terminal.Type)
	}
	if terminal.Status != session.StatusFailed {
		t.Fatalf("expected failed status, got %s", terminal.Status)
	}
	if !strings.Contains(terminal.Message, "connection refused") {
		t.Fatalf("expected the exception message, got %q", terminal.Message)
	}
	if !errors.Is(terminal.Err, services.ErrPollingTransport) {
		t.Fatalf("expected transport classification, got %v", terminal.Err)
	}
	if client.callCount() != 1 {
		t.Fatalf("expected polling to stop after the failed call, got %d calls", client.callCount())
	}
}

func TestPollerStopSuppressesLateEvents(t *testing.T) {
	release := make(chan struct{})
	client := &blockingClient{release: release}
	collector := newEventCollector()
	p := poller.New(client, fastPolicy(50), logging.NewNop())

	p.Start(context.Background(), "job-6", collector.handle)
	// Wait until the poller is blocked inside the status call.
	select {
	case <-client.entered():
	case <-time.After(5 * time.Second):
		t.Fatal("poller never issued a status call")
	}

	stopDone := make(chan struct{})
	go func() {
		p.Stop()
		close(stopDone)
	}()
	close(release)
	select {
	case <-stopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	if events := collector.snapshot(); len(events) != 0 {
		t.Fatalf("expected no events after stop, got %d", len(events))
	}
	if p.Active() {
		t.Fatal("expected poller to be inactive after Stop")
	}
	p.Stop() // repeat stop is a no-op
}

type blockingClient struct {
	release   chan struct{}
	enterOnce sync.Once
	enter     chan struct{}
	mu        sync.Mutex
}

func (c *blockingClient) entered() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enter == nil {
		c.enter = make(chan struct{})
	}
	return c.enter
}

func (c *blockingClient) Status(ctx context.Context, _ string) (transcriber.JobStatus, error) {
	c.mu.Lock()
	if c.enter == nil {
		c.enter = make(chan struct{})
	}
	enter := c.enter
	c.mu.Unlock()
	c.enterOnce.Do(func() { close(enter) })
	select {
	case <-c.release:
	case <-ctx.Done():
	}
	return transcriber.JobStatus{Status: "succeeded", Output: json.RawMessage(`"late"`)}, nil
}

package cleanup

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"scribe/internal/logging"
)

// Remover deletes one staged object by path.
type Remover interface {
	Remove(ctx context.Context, objectPath string) error
}

const removeTimeout = 15 * time.Second

// Coordinator issues best-effort deletion of staged remote files. Each path
// is cleaned at most once; repeat calls are no-ops. Failures are logged and
// never surfaced to the caller, so the success/reset flow is never blocked.
type Coordinator struct {
	remover Remover
	logger  *slog.Logger

	mu   sync.Mutex
	done map[string]struct{}
	wg   sync.WaitGroup
}

// New builds a coordinator. A nil remover disables all cleanup (staging not
// configured).
func New(remover Remover, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		remover: remover,
		logger:  logging.NewComponentLogger(logger, "cleanup"),
		done:    make(map[string]struct{}),
	}
}

// Cleanup deletes the staged object at path. Returns true when the object is
// gone (including "was never there" and "already cleaned").
func (c *Coordinator) Cleanup(path string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return true
	}
	if !c.claim(path) {
		return true
	}
	return c.remove(path)
}

// CleanupAsync fires Cleanup on a separate goroutine so the primary flow is
// never blocked on remote storage.
func (c *Coordinator) CleanupAsync(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	if !c.claim(path) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.remove(path)
	}()
}

// Wait blocks until all in-flight asynchronous cleanups finish. Used during
// teardown.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) claim(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.done[path]; ok {
		return false
	}
	c.done[path] = struct{}{}
	return true
}

func (c *Coordinator) remove(path string) bool {
	if c.remover == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	if err := c.remover.Remove(ctx, path); err != nil {
		c.logger.Warn("staged file cleanup failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "staging_cleanup_failed"),
		)
		return false
	}
	c.logger.Debug("staged file removed",
		logging.String("path", path),
		logging.String(logging.FieldEventType, "staging_cleanup"),
	)
	return true
}

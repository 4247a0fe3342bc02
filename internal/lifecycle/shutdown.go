// Package lifecycle coordinates ordered, time-bounded shutdown of the
// application's components.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ShutdownManager runs registered hooks in parallel when Shutdown is called.
type ShutdownManager struct {
	log     *slog.Logger
	timeout time.Duration

	mu    sync.Mutex
	hooks []Hook
	done  bool
}

// NewShutdownManager creates a manager whose Shutdown call is bounded by timeout.
func NewShutdownManager(log *slog.Logger, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ShutdownManager{log: log, timeout: timeout}
}

// Register adds a hook to run during shutdown.
func (m *ShutdownManager) Register(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, Hook{Name: name, Fn: fn})
}

// Shutdown executes all registered hooks in parallel and waits until they
// complete or the timeout expires. It is safe to call more than once; only
// the first call runs the hooks.
func (m *ShutdownManager) Shutdown() error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	hooks := make([]Hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)

	for _, h := range hooks {
		wg.Add(1)
		go func(h Hook) {
			defer wg.Done()

			start := time.Now()
			if err := h.Fn(ctx); err != nil {
				if m.log != nil {
					m.log.Error("shutdown hook failed",
						slog.String("hook", h.Name),
						slog.Any("error", err),
					)
				}
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
				return
			}
			if m.log != nil {
				m.log.Debug("shutdown hook completed",
					slog.String("hook", h.Name),
					slog.Duration("took", time.Since(start)),
				)
			}
		}(h)
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-ctx.Done():
		if m.log != nil {
			m.log.Warn("shutdown timed out before all hooks finished")
		}
		errMu.Lock()
		errs = append(errs, ctx.Err())
		errMu.Unlock()
	}

	return errors.Join(errs...)
}

// Package background runs fire-and-forget work as supervised tasks with
// panic recovery and error reporting, instead of unobserved dangling
// goroutines.
package background

import (
	"context"
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Supervisor spawns named background tasks. Each task gets panic recovery and
// structured error logging; when a Sentry hub is configured, failures and
// panics are reported there as well.
type Supervisor struct {
	logger *zap.Logger
	hub    *sentry.Hub
	wg     sync.WaitGroup
}

// NewSupervisor creates a supervisor. hub may be nil to disable Sentry
// reporting.
func NewSupervisor(logger *zap.Logger, hub *sentry.Hub) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{logger: logger, hub: hub}
}

// Go runs fn in its own goroutine. The caller is not blocked and does not
// observe the result; failures are logged and reported by the supervisor.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Background task panicked",
					zap.String("task", name),
					zap.Any("panic", r))
				if s.hub != nil {
					s.hub.Recover(r)
				}
			}
		}()

		if err := fn(ctx); err != nil {
			s.logger.Error("Background task failed",
				zap.String("task", name),
				zap.Error(err))
			if s.hub != nil {
				s.hub.CaptureException(fmt.Errorf("%s: %w", name, err))
			}
			return
		}
		s.logger.Debug("Background task completed", zap.String("task", name))
	}()
}

// Wait blocks until every spawned task has finished. Intended for shutdown
// and tests.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

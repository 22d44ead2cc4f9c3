// Package scheduler fires workflow runs from triggers: a fixed-interval poll
// for scheduled triggers, and a NATS event source for webhook triggers.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/storage"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// RunLauncher creates and starts a run for a workflow. The runner implements
// it; the scheduler never executes nodes itself.
type RunLauncher interface {
	StartRun(ctx context.Context, workflowID string) (*workflow.Run, error)
}

// Config controls the poll cadence.
type Config struct {
	// PollInterval is how often due triggers are checked
	PollInterval time.Duration
}

// DefaultConfig returns the production poll cadence.
func DefaultConfig() Config {
	return Config{PollInterval: time.Minute}
}

// Scheduler polls for due scheduled triggers and fires runs. Failed trigger
// preconditions skip the cycle silently but still advance the schedule, so a
// misconfigured trigger never re-fires in a tight loop.
type Scheduler struct {
	store    storage.Store
	launcher RunLauncher
	cfg      Config
	logger   *zap.Logger
}

// NewScheduler creates a trigger scheduler.
func NewScheduler(store storage.Store, launcher RunLauncher, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if launcher == nil {
		return nil, errors.New("launcher cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Scheduler{store: store, launcher: launcher, cfg: cfg, logger: logger}, nil
}

// Start runs the poll loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Trigger scheduler started",
		zap.Duration("poll_interval", s.cfg.PollInterval))
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Trigger scheduler stopped")
			return ctx.Err()
		case now := <-ticker.C:
			s.Poll(ctx, now)
		}
	}
}

// Poll processes every due trigger once. Exposed for tests; Start calls it on
// each tick.
func (s *Scheduler) Poll(ctx context.Context, now time.Time) {
	due, err := s.store.DueTriggers(ctx, now)
	if err != nil {
		s.logger.Error("Failed to query due triggers", zap.Error(err))
		return
	}
	for i := range due {
		s.fire(ctx, &due[i], now)
	}
}

// fire makes one firing decision for a due trigger. The schedule always
// advances, fired or skipped.
func (s *Scheduler) fire(ctx context.Context, trigger *workflow.Trigger, now time.Time) {
	next, err := NextTriggerAt(trigger.Schedule, now)
	var nextPtr *time.Time
	if err != nil {
		s.logger.Error("Failed to recompute trigger schedule",
			zap.String("trigger_id", trigger.ID),
			zap.Error(err))
	} else {
		nextPtr = &next
	}

	if reason := checkPreconditions(ctx, s.store, trigger); reason != "" {
		s.logger.Debug("Trigger skipped",
			zap.String("trigger_id", trigger.ID),
			zap.String("reason", reason))
		if err := s.store.MarkTriggered(ctx, trigger.ID, nil, nextPtr); err != nil {
			s.logger.Error("Failed to advance skipped trigger",
				zap.String("trigger_id", trigger.ID),
				zap.Error(err))
		}
		return
	}

	run, err := s.launcher.StartRun(ctx, trigger.WorkflowID)
	if err != nil {
		// Validation races (workflow edited between check and fire) are a
		// skip, not an error.
		s.logger.Warn("Trigger fire did not start a run",
			zap.String("trigger_id", trigger.ID),
			zap.Error(err))
		if err := s.store.MarkTriggered(ctx, trigger.ID, nil, nextPtr); err != nil {
			s.logger.Error("Failed to advance trigger",
				zap.String("trigger_id", trigger.ID),
				zap.Error(err))
		}
		return
	}

	firedAt := now
	if err := s.store.MarkTriggered(ctx, trigger.ID, &firedAt, nextPtr); err != nil {
		s.logger.Error("Failed to record trigger fire",
			zap.String("trigger_id", trigger.ID),
			zap.Error(err))
	}
	s.logger.Info("Trigger fired",
		zap.String("trigger_id", trigger.ID),
		zap.String("workflow_id", trigger.WorkflowID),
		zap.String("run_id", run.ID))
}

// checkPreconditions re-validates a trigger at fire time. A non-empty return
// is the skip reason.
func checkPreconditions(ctx context.Context, store storage.Store, trigger *workflow.Trigger) string {
	wf, err := store.GetWorkflow(ctx, trigger.WorkflowID)
	if err != nil {
		return "workflow not found"
	}
	if wf.Status != workflow.StatusActive {
		return "workflow not active"
	}
	if wf.ModelID == nil {
		return "workflow has no target model"
	}
	if len(wf.Nodes) == 0 {
		return "workflow has no nodes"
	}

	tenantCtx, err := store.GetTenantContext(ctx, wf.TenantID, *wf.ModelID)
	if err != nil {
		return "tenant context unavailable"
	}
	if tenantCtx.Credits <= 0 {
		return "tenant has no credits"
	}

	active, err := store.CountActiveRuns(ctx, wf.ID)
	if err != nil {
		return "active run count unavailable"
	}
	if active >= trigger.MaxConcurrentRuns {
		return "concurrency cap reached"
	}
	return ""
}

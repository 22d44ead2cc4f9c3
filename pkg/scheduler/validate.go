package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/storage"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// Triggers provides validated trigger CRUD. Every create or update that
// affects future firing recomputes NextTriggerAt.
type Triggers struct {
	store  storage.TriggerStore
	logger *zap.Logger
}

// NewTriggers creates the trigger CRUD service.
func NewTriggers(store storage.TriggerStore, logger *zap.Logger) *Triggers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Triggers{store: store, logger: logger}
}

// Create validates the trigger, computes its first firing time and persists it.
func (t *Triggers) Create(ctx context.Context, trigger *workflow.Trigger) error {
	if err := ValidateTrigger(trigger); err != nil {
		return err
	}
	if trigger.ID == "" {
		trigger.ID = uuid.NewString()
	}
	if err := recomputeNext(trigger, time.Now()); err != nil {
		return err
	}
	if err := t.store.CreateTrigger(ctx, trigger); err != nil {
		return err
	}
	t.logger.Info("Trigger created",
		zap.String("trigger_id", trigger.ID),
		zap.String("workflow_id", trigger.WorkflowID),
		zap.String("type", string(trigger.Type)))
	return nil
}

// Update validates the trigger, recomputes its next firing time and persists it.
func (t *Triggers) Update(ctx context.Context, trigger *workflow.Trigger) error {
	if err := ValidateTrigger(trigger); err != nil {
		return err
	}
	if err := recomputeNext(trigger, time.Now()); err != nil {
		return err
	}
	if err := t.store.UpdateTrigger(ctx, trigger); err != nil {
		return err
	}
	t.logger.Info("Trigger updated", zap.String("trigger_id", trigger.ID))
	return nil
}

// Get returns one trigger by id.
func (t *Triggers) Get(ctx context.Context, id string) (*workflow.Trigger, error) {
	return t.store.GetTrigger(ctx, id)
}

// ValidateTrigger checks trigger configuration: a known type, a positive
// concurrency cap, and for scheduled triggers a valid schedule.
func ValidateTrigger(trigger *workflow.Trigger) error {
	if trigger.WorkflowID == "" {
		return engerrors.Validation("trigger requires a workflow id")
	}
	if trigger.Type != workflow.TriggerScheduled && trigger.Type != workflow.TriggerWebhook {
		return engerrors.Validation(fmt.Sprintf("unknown trigger type %q", trigger.Type))
	}
	if trigger.MaxConcurrentRuns <= 0 {
		trigger.MaxConcurrentRuns = 1
	}
	if trigger.Type != workflow.TriggerScheduled {
		return nil
	}
	return validateSchedule(trigger.Schedule)
}

func validateSchedule(s workflow.Schedule) error {
	switch s.Frequency {
	case workflow.FrequencyDaily:
	case workflow.FrequencyWeekly, workflow.FrequencySpecificDays:
		if len(s.Days) == 0 {
			return engerrors.Validation(fmt.Sprintf("frequency %s requires days", s.Frequency))
		}
		seen := make(map[int]bool, len(s.Days))
		for _, d := range s.Days {
			if d < 0 || d > 6 {
				return engerrors.Validation(fmt.Sprintf("day %d out of range 0-6", d))
			}
			if seen[d] {
				return engerrors.Validation(fmt.Sprintf("duplicate day %d", d))
			}
			seen[d] = true
		}
	default:
		return engerrors.Validation(fmt.Sprintf("unknown frequency %q", s.Frequency))
	}
	if _, _, err := parseClock(s.Time); err != nil {
		return engerrors.Validation(err.Error())
	}
	if _, err := loadLocation(s.Timezone); err != nil {
		return engerrors.Validation(err.Error())
	}
	return nil
}

// recomputeNext fills NextTriggerAt for scheduled triggers. Webhook triggers
// carry no schedule and keep a nil next fire time.
func recomputeNext(trigger *workflow.Trigger, now time.Time) error {
	if trigger.Type != workflow.TriggerScheduled {
		trigger.NextTriggerAt = nil
		return nil
	}
	next, err := NextTriggerAt(trigger.Schedule, now)
	if err != nil {
		return engerrors.Validation(err.Error())
	}
	trigger.NextTriggerAt = &next
	return nil
}

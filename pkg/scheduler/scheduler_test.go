package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/storage"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// fakeLauncher records StartRun calls without executing anything.
type fakeLauncher struct {
	mu       sync.Mutex
	launched []string
	err      error
}

func (f *fakeLauncher) StartRun(ctx context.Context, workflowID string) (*workflow.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.launched = append(f.launched, workflowID)
	return &workflow.Run{ID: "run-" + workflowID, WorkflowID: workflowID, Status: workflow.RunRunning}, nil
}

func (f *fakeLauncher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.launched)
}

func activeWorkflow(id string) *workflow.Workflow {
	model := "model-1"
	return &workflow.Workflow{
		ID:       id,
		TenantID: "tenant-1",
		ModelID:  &model,
		Status:   workflow.StatusActive,
		Nodes:    []workflow.Node{{ID: "n1", Kind: workflow.KindPrompt, Config: map[string]any{"template": "hi"}}},
	}
}

func seedDueTrigger(t *testing.T, store *storage.MemoryStore, id, workflowID string) {
	t.Helper()
	past := time.Now().Add(-time.Minute)
	require.NoError(t, store.CreateTrigger(context.Background(), &workflow.Trigger{
		ID:         id,
		WorkflowID: workflowID,
		Type:       workflow.TriggerScheduled,
		Enabled:    true,
		Schedule: workflow.Schedule{
			Frequency: workflow.FrequencyDaily,
			Time:      "09:00",
			Timezone:  "UTC",
		},
		NextTriggerAt:     &past,
		MaxConcurrentRuns: 1,
	}))
}

func newTestScheduler(t *testing.T, store *storage.MemoryStore, launcher RunLauncher) *Scheduler {
	t.Helper()
	s, err := NewScheduler(store, launcher, Config{PollInterval: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestPollFiresDueTrigger(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	store.PutWorkflow(activeWorkflow("wf-1"))
	store.SetCredits("tenant-1", 100)
	seedDueTrigger(t, store, "t1", "wf-1")
	launcher := &fakeLauncher{}

	s := newTestScheduler(t, store, launcher)
	s.Poll(context.Background(), time.Now())

	assert.Equal(t, 1, launcher.count())

	fired, err := store.GetTrigger(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, fired.LastTriggeredAt)
	require.NotNil(t, fired.NextTriggerAt)
	assert.True(t, fired.NextTriggerAt.After(time.Now()), "the schedule must advance past now")
}

func TestPollSkipsButAdvancesOnFailedPreconditions(t *testing.T) {
	tests := []struct {
		name string
		seed func(*storage.MemoryStore)
	}{
		{"workflow missing", func(store *storage.MemoryStore) {
			store.SetCredits("tenant-1", 100)
		}},
		{"workflow not active", func(store *storage.MemoryStore) {
			wf := activeWorkflow("wf-1")
			wf.Status = workflow.StatusPaused
			store.PutWorkflow(wf)
			store.SetCredits("tenant-1", 100)
		}},
		{"no target model", func(store *storage.MemoryStore) {
			wf := activeWorkflow("wf-1")
			wf.ModelID = nil
			store.PutWorkflow(wf)
			store.SetCredits("tenant-1", 100)
		}},
		{"no nodes", func(store *storage.MemoryStore) {
			wf := activeWorkflow("wf-1")
			wf.Nodes = nil
			store.PutWorkflow(wf)
			store.SetCredits("tenant-1", 100)
		}},
		{"no credits", func(store *storage.MemoryStore) {
			store.PutWorkflow(activeWorkflow("wf-1"))
			store.SetCredits("tenant-1", 0)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore(nil)
			tt.seed(store)
			seedDueTrigger(t, store, "t1", "wf-1")
			launcher := &fakeLauncher{}

			s := newTestScheduler(t, store, launcher)
			s.Poll(context.Background(), time.Now())

			assert.Zero(t, launcher.count(), "no run may start")

			tr, err := store.GetTrigger(context.Background(), "t1")
			require.NoError(t, err)
			assert.Nil(t, tr.LastTriggeredAt, "a skipped cycle records no fire")
			require.NotNil(t, tr.NextTriggerAt)
			assert.True(t, tr.NextTriggerAt.After(time.Now()), "the schedule still advances")
		})
	}
}

func TestPollRespectsConcurrencyCap(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	store.PutWorkflow(activeWorkflow("wf-1"))
	store.SetCredits("tenant-1", 100)
	seedDueTrigger(t, store, "t1", "wf-1")

	// One active run already at the cap of 1.
	require.NoError(t, store.CreateRun(context.Background(), &workflow.Run{
		ID: "existing", WorkflowID: "wf-1", TenantID: "tenant-1",
		Status: workflow.RunRunning, StartedAt: time.Now(),
	}, []string{"n1"}))

	launcher := &fakeLauncher{}
	s := newTestScheduler(t, store, launcher)
	s.Poll(context.Background(), time.Now())

	assert.Zero(t, launcher.count())
}

func TestPollAdvancesWhenLaunchFails(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	store.PutWorkflow(activeWorkflow("wf-1"))
	store.SetCredits("tenant-1", 100)
	seedDueTrigger(t, store, "t1", "wf-1")
	launcher := &fakeLauncher{err: errors.New("graph edited mid-flight")}

	s := newTestScheduler(t, store, launcher)
	s.Poll(context.Background(), time.Now())

	tr, err := store.GetTrigger(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, tr.LastTriggeredAt)
	require.NotNil(t, tr.NextTriggerAt)
	assert.True(t, tr.NextTriggerAt.After(time.Now()))
}

func TestPollIgnoresFutureAndDisabledTriggers(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	store.PutWorkflow(activeWorkflow("wf-1"))
	store.SetCredits("tenant-1", 100)

	future := time.Now().Add(time.Hour)
	require.NoError(t, store.CreateTrigger(context.Background(), &workflow.Trigger{
		ID: "future", WorkflowID: "wf-1", Type: workflow.TriggerScheduled, Enabled: true,
		Schedule:      workflow.Schedule{Frequency: workflow.FrequencyDaily, Time: "09:00"},
		NextTriggerAt: &future, MaxConcurrentRuns: 1,
	}))
	past := time.Now().Add(-time.Minute)
	require.NoError(t, store.CreateTrigger(context.Background(), &workflow.Trigger{
		ID: "disabled", WorkflowID: "wf-1", Type: workflow.TriggerScheduled, Enabled: false,
		Schedule:      workflow.Schedule{Frequency: workflow.FrequencyDaily, Time: "09:00"},
		NextTriggerAt: &past, MaxConcurrentRuns: 1,
	}))

	launcher := &fakeLauncher{}
	s := newTestScheduler(t, store, launcher)
	s.Poll(context.Background(), time.Now())

	assert.Zero(t, launcher.count())
}

func TestStartStopsOnContextCancel(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	s, err := NewScheduler(store, &fakeLauncher{}, Config{PollInterval: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewSchedulerValidation(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	_, err := NewScheduler(nil, &fakeLauncher{}, Config{}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewScheduler(store, nil, Config{}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewScheduler(store, &fakeLauncher{}, Config{}, nil)
	assert.Error(t, err)
}

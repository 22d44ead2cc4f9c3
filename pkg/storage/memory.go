package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// ErrNotFound indicates that a record does not exist.
var ErrNotFound = errors.New("not found")

// MemoryStore is an in-process Store used by tests and examples. All methods
// are safe for concurrent use. It is not a production store: state is lost on
// restart and never shared across processes.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*workflow.Workflow
	runs      map[string]*workflow.Run
	results   map[string]map[string]*workflow.NodeResult // runID -> nodeID -> result
	triggers  map[string]*workflow.Trigger
	credits   map[string]int // tenantID -> balance
	variables map[string]map[string]map[string]string // tenantID -> namespace -> key -> value
	validate  GraphValidator
}

// NewMemoryStore creates an empty in-memory store. validate may be nil to
// skip save-time graph validation.
func NewMemoryStore(validate GraphValidator) *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*workflow.Workflow),
		runs:      make(map[string]*workflow.Run),
		results:   make(map[string]map[string]*workflow.NodeResult),
		triggers:  make(map[string]*workflow.Trigger),
		credits:   make(map[string]int),
		variables: make(map[string]map[string]map[string]string),
		validate:  validate,
	}
}

// PutWorkflow inserts or replaces a workflow definition.
func (s *MemoryStore) PutWorkflow(wf *workflow.Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *wf
	s.workflows[wf.ID] = &cp
}

// SetCredits sets a tenant balance.
func (s *MemoryStore) SetCredits(tenantID string, balance int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits[tenantID] = balance
}

// SetVariables sets the template variables for a tenant.
func (s *MemoryStore) SetVariables(tenantID string, vars map[string]map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variables[tenantID] = vars
}

func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	cp := *wf
	return &cp, nil
}

func (s *MemoryStore) ReplaceGraph(ctx context.Context, workflowID string, nodes []workflow.Node, edges []workflow.Edge) error {
	if s.validate != nil {
		if err := s.validate(nodes, edges); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	wf.Nodes = nodes
	wf.Edges = edges
	wf.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *workflow.Run, nodeIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	cp := *run
	s.runs[run.ID] = &cp
	results := make(map[string]*workflow.NodeResult, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		results[nodeID] = &workflow.NodeResult{
			RunID:     run.ID,
			NodeID:    nodeID,
			Status:    workflow.NodePending,
			UpdatedAt: time.Now(),
		}
	}
	s.results[run.ID] = results
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*workflow.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	cp := *run
	return &cp, nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, run *workflow.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryStore) GetNodeResults(ctx context.Context, runID string) ([]workflow.NodeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results, ok := s.results[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	out := make([]workflow.NodeResult, 0, len(results))
	for _, r := range results {
		out = append(out, *r)
	}
	return out, nil
}

func (s *MemoryStore) UpdateNodeResult(ctx context.Context, result *workflow.NodeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	results, ok := s.results[result.RunID]
	if !ok {
		return fmt.Errorf("run %s: %w", result.RunID, ErrNotFound)
	}
	current, ok := results[result.NodeID]
	if !ok {
		return fmt.Errorf("node result %s/%s: %w", result.RunID, result.NodeID, ErrNotFound)
	}
	if !current.Status.CanTransitionTo(result.Status) {
		return fmt.Errorf("node result %s/%s: illegal transition %s -> %s",
			result.RunID, result.NodeID, current.Status, result.Status)
	}
	cp := *result
	cp.UpdatedAt = time.Now()
	results[result.NodeID] = &cp
	return nil
}

func (s *MemoryStore) CountActiveRuns(ctx context.Context, workflowID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, run := range s.runs {
		if run.WorkflowID == workflowID && !run.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CreateTrigger(ctx context.Context, trigger *workflow.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.triggers[trigger.ID]; ok {
		return fmt.Errorf("trigger %s already exists", trigger.ID)
	}
	cp := *trigger
	s.triggers[trigger.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateTrigger(ctx context.Context, trigger *workflow.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.triggers[trigger.ID]; !ok {
		return fmt.Errorf("trigger %s: %w", trigger.ID, ErrNotFound)
	}
	cp := *trigger
	s.triggers[trigger.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTrigger(ctx context.Context, id string) (*workflow.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trigger, ok := s.triggers[id]
	if !ok {
		return nil, fmt.Errorf("trigger %s: %w", id, ErrNotFound)
	}
	cp := *trigger
	return &cp, nil
}

func (s *MemoryStore) DueTriggers(ctx context.Context, now time.Time) ([]workflow.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []workflow.Trigger
	for _, t := range s.triggers {
		if !t.Enabled || t.Type != workflow.TriggerScheduled {
			continue
		}
		if t.NextTriggerAt == nil || t.NextTriggerAt.After(now) {
			continue
		}
		due = append(due, *t)
	}
	return due, nil
}

func (s *MemoryStore) ListWebhookTriggers(ctx context.Context, workflowID string) ([]workflow.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []workflow.Trigger
	for _, t := range s.triggers {
		if t.Enabled && t.Type == workflow.TriggerWebhook && t.WorkflowID == workflowID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkTriggered(ctx context.Context, id string, firedAt *time.Time, next *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trigger, ok := s.triggers[id]
	if !ok {
		return fmt.Errorf("trigger %s: %w", id, ErrNotFound)
	}
	if firedAt != nil {
		trigger.LastTriggeredAt = firedAt
	}
	trigger.NextTriggerAt = next
	return nil
}

func (s *MemoryStore) GetTenantContext(ctx context.Context, tenantID, modelID string) (*TenantContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, ok := s.credits[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	vars := make(map[string]map[string]string)
	for ns, kv := range s.variables[tenantID] {
		cp := make(map[string]string, len(kv))
		for k, v := range kv {
			cp[k] = v
		}
		vars[ns] = cp
	}
	return &TenantContext{
		TenantID:  tenantID,
		ModelID:   modelID,
		Credits:   balance,
		Variables: vars,
	}, nil
}

func (s *MemoryStore) DeductCredits(ctx context.Context, tenantID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("deduction amount must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.credits[tenantID]
	if !ok {
		return fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	if balance < amount {
		return engerrors.ErrInsufficientCredits
	}
	s.credits[tenantID] = balance - amount
	return nil
}

var _ Store = (*MemoryStore)(nil)

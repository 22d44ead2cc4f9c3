// Package storage defines the narrow persistence contracts the engine
// depends on, an in-memory implementation used by tests and examples, and a
// blob-backed media store for oversized node outputs.
package storage

import (
	"context"
	"time"

	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// TenantContext is the read-only tenant and target-model record the runner
// resolves template variables against.
type TenantContext struct {
	// TenantID is the owning agency
	TenantID string
	// ModelID is the target model, empty for template workflows
	ModelID string
	// Credits is a point-in-time view of the balance. Deductions never go
	// through this field; see TenantStore.DeductCredits.
	Credits int
	// Variables maps namespace -> key -> value, e.g. Variables["model"]["name"]
	Variables map[string]map[string]string
}

// GraphValidator checks a full nodes+edges replacement before it is persisted.
// The nodes package supplies one that validates ports against the registry.
type GraphValidator func(nodes []workflow.Node, edges []workflow.Edge) error

// WorkflowStore provides access to workflow definitions.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)

	// ReplaceGraph swaps the full node and edge set of a workflow atomically.
	// Graphs are never patched incrementally.
	ReplaceGraph(ctx context.Context, workflowID string, nodes []workflow.Node, edges []workflow.Edge) error
}

// RunStore provides access to runs and their per-node results.
type RunStore interface {
	// CreateRun persists the run together with one pending NodeResult per
	// node id, atomically.
	CreateRun(ctx context.Context, run *workflow.Run, nodeIDs []string) error

	GetRun(ctx context.Context, id string) (*workflow.Run, error)

	// UpdateRun persists run status, credit total and failure fields.
	UpdateRun(ctx context.Context, run *workflow.Run) error

	GetNodeResults(ctx context.Context, runID string) ([]workflow.NodeResult, error)

	// UpdateNodeResult persists a node result. Implementations must refuse
	// transitions that regress the status (monotonicity guard).
	UpdateNodeResult(ctx context.Context, result *workflow.NodeResult) error

	// CountActiveRuns counts runs for the workflow that are not terminal.
	CountActiveRuns(ctx context.Context, workflowID string) (int, error)
}

// TriggerStore provides access to triggers.
type TriggerStore interface {
	CreateTrigger(ctx context.Context, trigger *workflow.Trigger) error
	UpdateTrigger(ctx context.Context, trigger *workflow.Trigger) error
	GetTrigger(ctx context.Context, id string) (*workflow.Trigger, error)

	// DueTriggers returns enabled scheduled triggers whose NextTriggerAt is
	// at or before now.
	DueTriggers(ctx context.Context, now time.Time) ([]workflow.Trigger, error)

	// ListWebhookTriggers returns enabled webhook-type triggers for a workflow.
	ListWebhookTriggers(ctx context.Context, workflowID string) ([]workflow.Trigger, error)

	// MarkTriggered records a firing decision: the last fire time (nil when
	// the cycle was skipped) and the recomputed next fire time.
	MarkTriggered(ctx context.Context, id string, firedAt *time.Time, next *time.Time) error
}

// TenantStore provides the tenant context and the atomic credit deduction.
type TenantStore interface {
	GetTenantContext(ctx context.Context, tenantID, modelID string) (*TenantContext, error)

	// DeductCredits atomically decrements the tenant balance if it covers
	// amount, and returns errors.ErrInsufficientCredits otherwise. Callers
	// never read-then-write the balance themselves.
	DeductCredits(ctx context.Context, tenantID string, amount int) error
}

// Store is the full persistence collaborator.
type Store interface {
	WorkflowStore
	RunStore
	TriggerStore
	TenantStore
}

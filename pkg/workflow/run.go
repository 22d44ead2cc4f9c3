package workflow

import "time"

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunRunning          RunStatus = "running"
	RunWaitingForReview RunStatus = "waiting_for_review"
	RunCompleted        RunStatus = "completed"
	RunFailed           RunStatus = "failed"
	RunCancelled        RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// Run is one execution instance of a workflow graph.
type Run struct {
	// ID is the unique identifier of the run
	ID string `json:"id"`
	// WorkflowID references the executed workflow
	WorkflowID string `json:"workflowId"`
	// TenantID is the owning agency, denormalized for credit deduction
	TenantID string `json:"tenantId"`
	// ModelID is the target model context for template resolution
	ModelID string `json:"modelId"`
	// Status is the lifecycle state
	Status RunStatus `json:"status"`
	// CreditsUsed is the sum of credits of completed node results
	CreditsUsed int `json:"creditsUsed"`
	// FailedNodeID identifies the failing node when Status is failed
	FailedNodeID string `json:"failedNodeId,omitempty"`
	// Error is the failure message when Status is failed
	Error string `json:"error,omitempty"`
	// StartedAt is when the run was created
	StartedAt time.Time `json:"startedAt"`
	// CompletedAt is when the run reached a terminal state
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NodeResultStatus represents the lifecycle state of a single node execution
// within a run. Transitions are monotonic and never regress.
type NodeResultStatus string

const (
	NodePending          NodeResultStatus = "pending"
	NodeRunning          NodeResultStatus = "running"
	NodeCompleted        NodeResultStatus = "completed"
	NodeFailed           NodeResultStatus = "failed"
	NodeWaitingForReview NodeResultStatus = "waiting_for_review"
	NodeSkipped          NodeResultStatus = "skipped"
)

// Terminal reports whether the node result admits no further work.
// waiting_for_review is not terminal: an approval completes it.
func (s NodeResultStatus) Terminal() bool {
	return s == NodeCompleted || s == NodeFailed || s == NodeSkipped
}

// rank orders statuses for the monotonic transition guard.
func (s NodeResultStatus) rank() int {
	switch s {
	case NodePending:
		return 0
	case NodeRunning:
		return 1
	case NodeWaitingForReview:
		return 2
	case NodeCompleted, NodeFailed, NodeSkipped:
		return 3
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next preserves monotonicity.
func (s NodeResultStatus) CanTransitionTo(next NodeResultStatus) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// NodeResult is the per-node, per-run execution record.
type NodeResult struct {
	RunID  string           `json:"runId"`
	NodeID string           `json:"nodeId"`
	Status NodeResultStatus `json:"status"`
	// Output maps output port names to produced values
	Output map[string]any `json:"output,omitempty"`
	// Error holds the failure message when Status is failed
	Error string `json:"error,omitempty"`
	// CreditsUsed is the metered cost of this node
	CreditsUsed int `json:"creditsUsed"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

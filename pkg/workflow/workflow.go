// Package workflow defines the data model for the orchestration engine:
// workflows, their node graphs, runs, per-node results, and triggers.
package workflow

import "time"

// Status represents the lifecycle state of a workflow definition.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusArchived Status = "archived"
)

// NodeKind identifies which capability handles a node. The set of kinds is
// closed; see the nodes package registry.
type NodeKind string

const (
	KindGenerateImage NodeKind = "generate_image"
	KindEditImage     NodeKind = "edit_image"
	KindGenerateVideo NodeKind = "generate_video"
	KindPrompt        NodeKind = "prompt"
	KindText          NodeKind = "text"
	KindScript        NodeKind = "script"
	KindReview        NodeKind = "review"
	KindPick          NodeKind = "pick"
)

// IsGate reports whether the kind pauses a run for human approval.
func (k NodeKind) IsGate() bool {
	return k == KindReview || k == KindPick
}

// Position holds display coordinates for a node. Display-only; execution
// never reads it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single step in a workflow graph.
type Node struct {
	// ID is the unique identifier of the node within its workflow
	ID string `json:"id"`
	// Kind selects the capability that executes this node
	Kind NodeKind `json:"kind"`
	// Config holds the node-specific configuration, possibly containing
	// template variables resolved at execution time
	Config map[string]any `json:"config"`
	// Position is the canvas placement of the node
	Position Position `json:"position"`
}

// Edge connects an output port of one node to an input port of another.
// Both endpoints must belong to the same workflow and the two port types
// must satisfy the compatibility rule in ports.go.
type Edge struct {
	SourceNodeID string `json:"sourceNodeId"`
	SourcePort   string `json:"sourcePort"`
	TargetNodeID string `json:"targetNodeId"`
	TargetPort   string `json:"targetPort"`
}

// Workflow is a tenant-owned directed acyclic graph of generation steps.
// The graph is always replaced as a whole (nodes and edges together), never
// patched incrementally.
type Workflow struct {
	// ID is the unique identifier of the workflow
	ID string `json:"id"`
	// TenantID is the owning agency
	TenantID string `json:"tenantId"`
	// ModelID is the target model the workflow produces content for.
	// Nil marks the workflow as a template.
	ModelID *string `json:"modelId,omitempty"`
	// Nodes are the steps of the graph
	Nodes []Node `json:"nodes"`
	// Edges are the typed connections between node ports
	Edges []Edge `json:"edges"`
	// Status is the lifecycle state
	Status Status `json:"status"`
	// CreatedAt is the creation timestamp
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is the last modification timestamp
	UpdatedAt time.Time `json:"updatedAt"`
}

// NodeByID returns the node with the given id, or nil if absent.
func (w *Workflow) NodeByID(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// IncomingEdges returns the edges targeting the given node.
func (w *Workflow) IncomingEdges(nodeID string) []Edge {
	var in []Edge
	for _, e := range w.Edges {
		if e.TargetNodeID == nodeID {
			in = append(in, e)
		}
	}
	return in
}

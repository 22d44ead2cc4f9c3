// Package nodes defines the closed set of node capabilities the engine can
// execute and the registry that dispatches to them.
package nodes

import (
	"context"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// RunContext carries per-run identity into executors.
type RunContext struct {
	// RunID is the executing run
	RunID string
	// NodeID is the node being executed
	NodeID string
	// TenantID is the owning agency, used as the throttle key for outbound calls
	TenantID string
	// ModelID is the target model of the run
	ModelID string
	// Logger is the run-scoped structured logger
	Logger *zap.Logger
}

// Capability is the contract every node kind implements. The set of
// implementations is sealed: capabilities are registered once in a static
// table (see the builtin package) and never looked up dynamically beyond it.
type Capability interface {
	// Kind returns the node kind this capability handles
	Kind() workflow.NodeKind

	// InputPorts declares the named, typed inputs of the node
	InputPorts() []workflow.Port

	// OutputPorts declares the named, typed outputs of the node
	OutputPorts() []workflow.Port

	// ConfigSchema declares the configuration fields, defaults and constraints
	ConfigSchema() Schema

	// CreditCost computes the credit price of executing the node. It is a
	// pure function of the resolved configuration.
	CreditCost(config map[string]any) int

	// Execute runs the node and returns its output keyed by output port name.
	Execute(ctx context.Context, config map[string]any, inputs map[string]any, runCtx RunContext) (map[string]any, error)
}

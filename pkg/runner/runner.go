// Package runner executes workflow runs: it orders the graph topologically,
// drives each node through its capability, pauses at approval gates, meters
// credits, and persists every result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/background"
	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/nodes"
	"github.com/wehubfusion/Daedalus/pkg/storage"
	"github.com/wehubfusion/Daedalus/pkg/template"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// Runner orchestrates run execution. Nodes within one run execute strictly
// sequentially in topological order; independent branches are not
// parallelized.
type Runner struct {
	store           storage.Store
	registry        *nodes.Registry
	supervisor      *background.Supervisor
	logger          *zap.Logger
	tracer          trace.Tracer
	offloader       *storage.MediaOffloader
	tracingShutdown func(context.Context) error
}

// NewRunner creates a runner. tracingConfig is optional: when nil, no tracing
// exporter is set up and spans are no-ops.
func NewRunner(store storage.Store, registry *nodes.Registry, supervisor *background.Supervisor, logger *zap.Logger, tracingConfig *TracingConfig) (*Runner, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if supervisor == nil {
		return nil, errors.New("supervisor cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	r := &Runner{
		store:      store,
		registry:   registry,
		supervisor: supervisor,
		logger:     logger,
		tracer:     otel.Tracer("daedalus/runner"),
	}

	if tracingConfig != nil {
		shutdown, err := setupTracing(context.Background(), *tracingConfig, logger)
		if err != nil {
			logger.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
		} else {
			r.tracingShutdown = shutdown
			logger.Info("Tracing setup complete",
				zap.String("service", tracingConfig.ServiceName),
				zap.String("endpoint", tracingConfig.OTLPEndpoint))
		}
	}

	return r, nil
}

// SetMediaOffloader makes the runner move oversized media outputs to a media
// store before persisting node results.
func (r *Runner) SetMediaOffloader(offloader *storage.MediaOffloader) {
	r.offloader = offloader
}

// Close shuts down the tracing exporter, if one was configured.
func (r *Runner) Close() error {
	if r.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.tracingShutdown(ctx); err != nil {
			r.logger.Error("Error shutting down tracing", zap.Error(err))
			return err
		}
		r.logger.Info("Tracing shutdown complete")
	}
	return nil
}

// RunWorkflow executes the run with the given id until it completes, fails,
// or suspends at a gate. It is safe to call again on a run resumed after an
// approval: node results that are already terminal are skipped.
func (r *Runner) RunWorkflow(ctx context.Context, runID string) error {
	ctx, span := r.tracer.Start(ctx, "runner.runWorkflow",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if run.Status.Terminal() {
		span.SetStatus(codes.Error, "run already terminal")
		return fmt.Errorf("run %s: %w", runID, engerrors.ErrRunTerminal)
	}

	wf, err := r.store.GetWorkflow(ctx, run.WorkflowID)
	if err != nil {
		return err
	}
	tenantCtx, err := r.store.GetTenantContext(ctx, run.TenantID, run.ModelID)
	if err != nil {
		return err
	}
	resultList, err := r.store.GetNodeResults(ctx, runID)
	if err != nil {
		return err
	}
	results := make(map[string]*workflow.NodeResult, len(resultList))
	for i := range resultList {
		results[resultList[i].NodeID] = &resultList[i]
	}

	order, err := topologicalOrder(wf)
	if err != nil {
		// Cycle: fail the run and write nothing else.
		r.logger.Error("Workflow graph contains a cycle",
			zap.String("run_id", runID),
			zap.String("workflow_id", wf.ID))
		span.SetStatus(codes.Error, "cycle")
		r.failRun(ctx, run, "", err)
		return err
	}

	r.logger.Info("Executing run",
		zap.String("run_id", runID),
		zap.String("workflow_id", wf.ID),
		zap.Int("nodes", len(order)))

	for _, nodeID := range order {
		// Cooperative cancellation: re-read the run between nodes.
		current, err := r.store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if current.Status == workflow.RunCancelled {
			r.logger.Info("Run cancelled, stopping execution",
				zap.String("run_id", runID))
			return nil
		}
		run = current

		result, ok := results[nodeID]
		if !ok {
			err := engerrors.Validation(fmt.Sprintf("no node result for node %s", nodeID))
			r.failRun(ctx, run, nodeID, err)
			return err
		}
		if result.Status.Terminal() {
			continue
		}
		if result.Status == workflow.NodeWaitingForReview {
			// Still paused; nothing to do until an approval arrives.
			return nil
		}

		node := wf.NodeByID(nodeID)
		done, err := r.executeNode(ctx, run, wf, node, result, results, tenantCtx)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if done {
			// Suspended at a gate, or cancelled while the node was in flight.
			span.SetStatus(codes.Ok, "run suspended")
			return nil
		}
	}

	now := time.Now()
	run.Status = workflow.RunCompleted
	run.CompletedAt = &now
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return err
	}
	span.SetStatus(codes.Ok, "run completed")
	r.logger.Info("Run completed",
		zap.String("run_id", runID),
		zap.Int("credits_used", run.CreditsUsed))
	return nil
}

// executeNode runs a single node. It returns done=true when the run
// suspended at a gate and execution must stop without error.
func (r *Runner) executeNode(ctx context.Context, run *workflow.Run, wf *workflow.Workflow, node *workflow.Node, result *workflow.NodeResult, results map[string]*workflow.NodeResult, tenantCtx *storage.TenantContext) (done bool, err error) {
	ctx, span := r.tracer.Start(ctx, "runner.executeNode",
		trace.WithAttributes(
			attribute.String("run.id", run.ID),
			attribute.String("node.id", node.ID),
			attribute.String("node.kind", string(node.Kind)),
		))
	defer span.End()

	capability, err := r.registry.Get(node.Kind)
	if err != nil {
		r.failNode(ctx, run, result, err)
		return false, err
	}

	inputs := gatherInputs(wf, node.ID, results)

	resolved := template.Resolve(node.Config, template.Variables(tenantCtx.Variables))
	resolved, err = capability.ConfigSchema().Apply(resolved)
	if err != nil {
		r.failNode(ctx, run, result, err)
		return false, err
	}

	result.Status = workflow.NodeRunning
	if err := r.store.UpdateNodeResult(ctx, result); err != nil {
		return false, err
	}

	start := time.Now()
	runCtx := nodes.RunContext{
		RunID:    run.ID,
		NodeID:   node.ID,
		TenantID: run.TenantID,
		ModelID:  run.ModelID,
		Logger:   r.logger.With(zap.String("run_id", run.ID), zap.String("node_id", node.ID)),
	}
	output, execErr := capability.Execute(ctx, resolved, inputs, runCtx)
	span.SetAttributes(attribute.Int64("node.duration_ms", time.Since(start).Milliseconds()))

	// Cancel can land while the executor is in flight. The node's result is
	// still written, but the run's cancelled state stands: no gate suspension,
	// no failure escalation, and no credit charge.
	current, err := r.store.GetRun(ctx, run.ID)
	if err != nil {
		return false, err
	}
	if current.Status == workflow.RunCancelled {
		if execErr != nil {
			result.Status = workflow.NodeFailed
			result.Error = execErr.Error()
		} else {
			result.Status = workflow.NodeCompleted
			result.Output = output
		}
		if err := r.store.UpdateNodeResult(ctx, result); err != nil {
			return false, err
		}
		span.SetStatus(codes.Ok, "run cancelled during node execution")
		r.logger.Info("Run cancelled during node execution, result recorded",
			zap.String("run_id", run.ID),
			zap.String("node_id", node.ID))
		return true, nil
	}

	if node.Kind.IsGate() {
		// Gates suspend the run even when their pass-through succeeded.
		if execErr != nil {
			span.RecordError(execErr)
			span.SetStatus(codes.Error, execErr.Error())
			wrapped := engerrors.NodeExecution(node.ID, execErr)
			r.failNode(ctx, run, result, wrapped)
			return false, wrapped
		}
		result.Status = workflow.NodeWaitingForReview
		result.Output = output
		if err := r.store.UpdateNodeResult(ctx, result); err != nil {
			return false, err
		}
		run.Status = workflow.RunWaitingForReview
		if err := r.store.UpdateRun(ctx, run); err != nil {
			return false, err
		}
		r.logger.Info("Run suspended at gate",
			zap.String("run_id", run.ID),
			zap.String("node_id", node.ID),
			zap.String("node_kind", string(node.Kind)))
		return true, nil
	}

	if execErr != nil {
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
		wrapped := engerrors.NodeExecution(node.ID, execErr)
		r.failNode(ctx, run, result, wrapped)
		return false, wrapped
	}

	cost := capability.CreditCost(resolved)
	if cost > 0 {
		if err := r.store.DeductCredits(ctx, run.TenantID, cost); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.failNode(ctx, run, result, err)
			return false, err
		}
	}

	if r.offloader != nil {
		output = r.offloader.OffloadOutput(ctx, run.ID, node.ID, output)
	}

	result.Status = workflow.NodeCompleted
	result.Output = output
	result.CreditsUsed = cost
	if err := r.store.UpdateNodeResult(ctx, result); err != nil {
		return false, err
	}
	run.CreditsUsed += cost
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return false, err
	}

	span.SetStatus(codes.Ok, "node completed")
	r.logger.Info("Node completed",
		zap.String("run_id", run.ID),
		zap.String("node_id", node.ID),
		zap.String("node_kind", string(node.Kind)),
		zap.Int("credits", cost),
		zap.Duration("duration", time.Since(start)))
	return false, nil
}

// failNode records the failure on the node result and marks the run failed.
// Credits already spent on prior nodes are not refunded.
func (r *Runner) failNode(ctx context.Context, run *workflow.Run, result *workflow.NodeResult, cause error) {
	result.Status = workflow.NodeFailed
	result.Error = cause.Error()
	if err := r.store.UpdateNodeResult(ctx, result); err != nil {
		r.logger.Error("Failed to persist node failure",
			zap.String("run_id", run.ID),
			zap.String("node_id", result.NodeID),
			zap.Error(err))
	}
	r.failRun(ctx, run, result.NodeID, cause)
}

func (r *Runner) failRun(ctx context.Context, run *workflow.Run, nodeID string, cause error) {
	now := time.Now()
	run.Status = workflow.RunFailed
	run.FailedNodeID = nodeID
	run.Error = cause.Error()
	run.CompletedAt = &now
	if err := r.store.UpdateRun(ctx, run); err != nil {
		r.logger.Error("Failed to persist run failure",
			zap.String("run_id", run.ID),
			zap.Error(err))
	}
	r.logger.Error("Run failed",
		zap.String("run_id", run.ID),
		zap.String("failed_node_id", nodeID),
		zap.Error(cause))
}

// gatherInputs reads, for each incoming edge, the upstream result's output at
// the source port into the input map at the target port.
func gatherInputs(wf *workflow.Workflow, nodeID string, results map[string]*workflow.NodeResult) map[string]any {
	inputs := make(map[string]any)
	for _, edge := range wf.IncomingEdges(nodeID) {
		upstream, ok := results[edge.SourceNodeID]
		if !ok || upstream.Output == nil {
			continue
		}
		if value, ok := upstream.Output[edge.SourcePort]; ok {
			inputs[edge.TargetPort] = value
		}
	}
	return inputs
}

// topologicalOrder runs Kahn's algorithm over the workflow graph. An order
// that omits nodes means the graph has a cycle.
func topologicalOrder(wf *workflow.Workflow) ([]string, error) {
	inDegree := make(map[string]int, len(wf.Nodes))
	adjacency := make(map[string][]string, len(wf.Nodes))
	for _, n := range wf.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range wf.Edges {
		adjacency[e.SourceNodeID] = append(adjacency[e.SourceNodeID], e.TargetNodeID)
		inDegree[e.TargetNodeID]++
	}

	var queue []string
	for _, n := range wf.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(wf.Nodes))
	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]
		order = append(order, nodeID)
		for _, next := range adjacency[nodeID] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(wf.Nodes) {
		return nil, engerrors.NewError(engerrors.CodeCycle,
			fmt.Sprintf("topological order covers %d of %d nodes", len(order), len(wf.Nodes)),
			engerrors.ErrCycle)
	}
	return order, nil
}

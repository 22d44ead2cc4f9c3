package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// Approve completes the node result currently paused for review and resumes
// the run. It is valid only while the run is waiting_for_review and nodeID is
// the paused node. selection optionally narrows a batch output to one item.
// The resumed execution runs as a supervised background task; Approve returns
// once the approval is persisted.
func (r *Runner) Approve(ctx context.Context, runID, nodeID string, selection *int) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != workflow.RunWaitingForReview {
		return fmt.Errorf("run %s is %s: %w", runID, run.Status, engerrors.ErrRunNotWaiting)
	}

	results, err := r.store.GetNodeResults(ctx, runID)
	if err != nil {
		return err
	}
	var paused *workflow.NodeResult
	for i := range results {
		if results[i].Status == workflow.NodeWaitingForReview {
			paused = &results[i]
			break
		}
	}
	if paused == nil || paused.NodeID != nodeID {
		return fmt.Errorf("node %s is not the paused node of run %s: %w",
			nodeID, runID, engerrors.ErrRunNotWaiting)
	}

	if selection != nil {
		if err := applySelection(paused, *selection); err != nil {
			return err
		}
	}

	paused.Status = workflow.NodeCompleted
	if err := r.store.UpdateNodeResult(ctx, paused); err != nil {
		return err
	}
	run.Status = workflow.RunRunning
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return err
	}

	r.logger.Info("Gate approved, resuming run",
		zap.String("run_id", runID),
		zap.String("node_id", nodeID))

	r.supervisor.Go(context.WithoutCancel(ctx), "run.resume", func(ctx context.Context) error {
		return r.RunWorkflow(ctx, runID)
	})
	return nil
}

// applySelection narrows the batch output of a paused gate to the item at
// index: the singular port takes the selected item and the batch port shrinks
// to just that item.
func applySelection(result *workflow.NodeResult, index int) error {
	if result.Output == nil {
		return engerrors.Validation("paused node has no output to select from")
	}
	batch, ok := batchItems(result.Output["images"])
	if !ok {
		return engerrors.Validation("paused node output holds no batch")
	}
	if index < 0 || index >= len(batch) {
		return engerrors.Validation(fmt.Sprintf("selection index %d out of range [0,%d)", index, len(batch)))
	}
	result.Output["image"] = batch[index]
	result.Output["images"] = []any{batch[index]}
	return nil
}

func batchItems(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, len(v) > 0
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return items, len(items) > 0
	default:
		return nil, false
	}
}

// Cancel marks the run cancelled and flips every node result that has not
// started to skipped. An already-executing node call is not force-aborted:
// its result is left as running so the runner can record the eventual outcome,
// uncharged, while the run stays cancelled.
func (r *Runner) Cancel(ctx context.Context, runID string) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %s: %w", runID, engerrors.ErrRunTerminal)
	}

	now := time.Now()
	run.Status = workflow.RunCancelled
	run.CompletedAt = &now
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return err
	}

	results, err := r.store.GetNodeResults(ctx, runID)
	if err != nil {
		return err
	}
	for i := range results {
		if results[i].Status.Terminal() || results[i].Status == workflow.NodeRunning {
			continue
		}
		results[i].Status = workflow.NodeSkipped
		if err := r.store.UpdateNodeResult(ctx, &results[i]); err != nil {
			r.logger.Warn("Failed to skip node result on cancel",
				zap.String("run_id", runID),
				zap.String("node_id", results[i].NodeID),
				zap.Error(err))
		}
	}

	r.logger.Info("Run cancelled", zap.String("run_id", runID))
	return nil
}

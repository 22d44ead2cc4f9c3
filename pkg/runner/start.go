package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// StartRun creates a run for the workflow, with one pending node result per
// node, and hands execution to a supervised background task. It returns the
// created run without waiting for execution.
func (r *Runner) StartRun(ctx context.Context, workflowID string) (*workflow.Run, error) {
	wf, err := r.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status != workflow.StatusActive {
		return nil, engerrors.Validation(fmt.Sprintf("workflow %s is %s, not active", workflowID, wf.Status))
	}
	if wf.ModelID == nil {
		return nil, engerrors.Validation(fmt.Sprintf("workflow %s has no target model assigned", workflowID))
	}
	if len(wf.Nodes) == 0 {
		return nil, engerrors.Validation(fmt.Sprintf("workflow %s has no nodes", workflowID))
	}

	run := &workflow.Run{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		TenantID:   wf.TenantID,
		ModelID:    *wf.ModelID,
		Status:     workflow.RunRunning,
		StartedAt:  time.Now(),
	}
	nodeIDs := make([]string, len(wf.Nodes))
	for i, n := range wf.Nodes {
		nodeIDs[i] = n.ID
	}
	if err := r.store.CreateRun(ctx, run, nodeIDs); err != nil {
		return nil, err
	}

	r.logger.Info("Run created",
		zap.String("run_id", run.ID),
		zap.String("workflow_id", wf.ID),
		zap.Int("nodes", len(nodeIDs)))

	r.supervisor.Go(context.WithoutCancel(ctx), "run.execute", func(ctx context.Context) error {
		return r.RunWorkflow(ctx, run.ID)
	})
	return run, nil
}

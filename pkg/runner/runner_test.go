package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/background"
	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/nodes"
	"github.com/wehubfusion/Daedalus/pkg/storage"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// fakeCapability is a scriptable capability for runner tests.
type fakeCapability struct {
	kind    workflow.NodeKind
	inputs  []workflow.Port
	outputs []workflow.Port
	schema  nodes.Schema
	cost    int
	execute func(config, inputs map[string]any) (map[string]any, error)

	mu       sync.Mutex
	executed []map[string]any
}

func (f *fakeCapability) Kind() workflow.NodeKind      { return f.kind }
func (f *fakeCapability) InputPorts() []workflow.Port  { return f.inputs }
func (f *fakeCapability) OutputPorts() []workflow.Port { return f.outputs }
func (f *fakeCapability) ConfigSchema() nodes.Schema   { return f.schema }
func (f *fakeCapability) CreditCost(config map[string]any) int {
	return f.cost
}

func (f *fakeCapability) Execute(ctx context.Context, config, inputs map[string]any, runCtx nodes.RunContext) (map[string]any, error) {
	f.mu.Lock()
	f.executed = append(f.executed, config)
	f.mu.Unlock()
	if f.execute != nil {
		return f.execute(config, inputs)
	}
	return map[string]any{}, nil
}

func (f *fakeCapability) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executed)
}

type fixture struct {
	store      *storage.MemoryStore
	registry   *nodes.Registry
	supervisor *background.Supervisor
	runner     *Runner
	prompt     *fakeCapability
	gen        *fakeCapability
	review     *fakeCapability
	pick       *fakeCapability
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      storage.NewMemoryStore(nil),
		supervisor: background.NewSupervisor(zap.NewNop(), nil),
	}
	f.prompt = &fakeCapability{
		kind:    workflow.KindPrompt,
		outputs: []workflow.Port{{Name: "text", Type: workflow.PortText}},
		schema:  nodes.Schema{"template": {Type: nodes.FieldString, Required: true}},
		execute: func(config, inputs map[string]any) (map[string]any, error) {
			return map[string]any{"text": config["template"]}, nil
		},
	}
	f.gen = &fakeCapability{
		kind:    workflow.KindGenerateImage,
		inputs:  []workflow.Port{{Name: "prompt", Type: workflow.PortText}},
		outputs: []workflow.Port{
			{Name: "image", Type: workflow.PortImage},
			{Name: "images", Type: workflow.PortImageBatch},
		},
		schema: nodes.Schema{"model": {Type: nodes.FieldString, Required: true}},
		cost:   5,
		execute: func(config, inputs map[string]any) (map[string]any, error) {
			return map[string]any{
				"image":  "data:image/png;base64,ONE",
				"images": []any{"data:image/png;base64,ONE", "data:image/png;base64,TWO"},
			}, nil
		},
	}
	f.review = &fakeCapability{
		kind:    workflow.KindReview,
		inputs:  []workflow.Port{{Name: "input", Type: workflow.PortAnyMedia, Required: true}},
		outputs: []workflow.Port{{Name: "output", Type: workflow.PortAnyMedia}},
		execute: func(config, inputs map[string]any) (map[string]any, error) {
			return map[string]any{"output": inputs["input"]}, nil
		},
	}
	f.pick = &fakeCapability{
		kind:   workflow.KindPick,
		inputs: []workflow.Port{{Name: "images", Type: workflow.PortImageBatch, Required: true}},
		outputs: []workflow.Port{
			{Name: "image", Type: workflow.PortImage},
			{Name: "images", Type: workflow.PortImageBatch},
		},
		execute: func(config, inputs map[string]any) (map[string]any, error) {
			out := map[string]any{"images": inputs["images"]}
			if batch, ok := inputs["images"].([]any); ok && len(batch) > 0 {
				out["image"] = batch[0]
			}
			return out, nil
		},
	}

	f.registry = nodes.NewRegistry()
	for _, c := range []*fakeCapability{f.prompt, f.gen, f.review, f.pick} {
		f.registry.Register(c)
	}

	runner, err := NewRunner(f.store, f.registry, f.supervisor, zap.NewNop(), nil)
	require.NoError(t, err)
	f.runner = runner
	return f
}

func (f *fixture) seedWorkflow(t *testing.T, nodeList []workflow.Node, edges []workflow.Edge) {
	t.Helper()
	model := "model-1"
	f.store.PutWorkflow(&workflow.Workflow{
		ID:       "wf-1",
		TenantID: "tenant-1",
		ModelID:  &model,
		Status:   workflow.StatusActive,
		Nodes:    nodeList,
		Edges:    edges,
	})
	f.store.SetCredits("tenant-1", 100)
}

func (f *fixture) createRun(t *testing.T, nodeIDs ...string) *workflow.Run {
	t.Helper()
	run := &workflow.Run{
		ID:         "run-1",
		WorkflowID: "wf-1",
		TenantID:   "tenant-1",
		ModelID:    "model-1",
		Status:     workflow.RunRunning,
		StartedAt:  time.Now(),
	}
	require.NoError(t, f.store.CreateRun(context.Background(), run, nodeIDs))
	return run
}

func (f *fixture) nodeResult(t *testing.T, runID, nodeID string) workflow.NodeResult {
	t.Helper()
	results, err := f.store.GetNodeResults(context.Background(), runID)
	require.NoError(t, err)
	for _, r := range results {
		if r.NodeID == nodeID {
			return r
		}
	}
	t.Fatalf("no result for node %s", nodeID)
	return workflow.NodeResult{}
}

func linearGraph() ([]workflow.Node, []workflow.Edge) {
	return []workflow.Node{
			{ID: "p", Kind: workflow.KindPrompt, Config: map[string]any{"template": "sunset portrait"}},
			{ID: "g", Kind: workflow.KindGenerateImage, Config: map[string]any{"model": "flux"}},
		}, []workflow.Edge{
			{SourceNodeID: "p", SourcePort: "text", TargetNodeID: "g", TargetPort: "prompt"},
		}
}

func TestRunWorkflowCompletesLinearGraph(t *testing.T) {
	f := newFixture(t)
	nodeList, edges := linearGraph()
	f.seedWorkflow(t, nodeList, edges)
	f.createRun(t, "p", "g")
	ctx := context.Background()

	require.NoError(t, f.runner.RunWorkflow(ctx, "run-1"))

	run, err := f.store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunCompleted, run.Status)
	assert.Equal(t, 5, run.CreditsUsed)
	assert.NotNil(t, run.CompletedAt)

	promptResult := f.nodeResult(t, "run-1", "p")
	assert.Equal(t, workflow.NodeCompleted, promptResult.Status)
	assert.Equal(t, "sunset portrait", promptResult.Output["text"])
	assert.Zero(t, promptResult.CreditsUsed)

	genResult := f.nodeResult(t, "run-1", "g")
	assert.Equal(t, workflow.NodeCompleted, genResult.Status)
	assert.Equal(t, 5, genResult.CreditsUsed)

	tc, err := f.store.GetTenantContext(ctx, "tenant-1", "model-1")
	require.NoError(t, err)
	assert.Equal(t, 95, tc.Credits)
}

func TestRunWorkflowPassesOutputsAlongEdges(t *testing.T) {
	f := newFixture(t)
	nodeList, edges := linearGraph()
	f.seedWorkflow(t, nodeList, edges)
	f.createRun(t, "p", "g")

	var genInputs map[string]any
	f.gen.execute = func(config, inputs map[string]any) (map[string]any, error) {
		genInputs = inputs
		return map[string]any{"image": "data:image/png;base64,X"}, nil
	}

	require.NoError(t, f.runner.RunWorkflow(context.Background(), "run-1"))
	require.NotNil(t, genInputs)
	assert.Equal(t, "sunset portrait", genInputs["prompt"],
		"the upstream text output must arrive on the prompt input port")
}

func TestRunWorkflowResolvesTemplateVariables(t *testing.T) {
	f := newFixture(t)
	f.seedWorkflow(t, []workflow.Node{
		{ID: "p", Kind: workflow.KindPrompt, Config: map[string]any{"template": "portrait of {{model.name}}"}},
	}, nil)
	f.store.SetVariables("tenant-1", map[string]map[string]string{
		"model": {"name": "Lena"},
	})
	f.createRun(t, "p")

	require.NoError(t, f.runner.RunWorkflow(context.Background(), "run-1"))
	result := f.nodeResult(t, "run-1", "p")
	assert.Equal(t, "portrait of Lena", result.Output["text"])
}

func TestRunWorkflowFailsOnCycleWithoutTouchingResults(t *testing.T) {
	f := newFixture(t)
	f.seedWorkflow(t, []workflow.Node{
		{ID: "a", Kind: workflow.KindPrompt, Config: map[string]any{"template": "x"}},
		{ID: "b", Kind: workflow.KindPrompt, Config: map[string]any{"template": "y"}},
	}, []workflow.Edge{
		{SourceNodeID: "a", SourcePort: "text", TargetNodeID: "b", TargetPort: "context"},
		{SourceNodeID: "b", SourcePort: "text", TargetNodeID: "a", TargetPort: "context"},
	})
	f.createRun(t, "a", "b")
	ctx := context.Background()

	err := f.runner.RunWorkflow(ctx, "run-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, engerrors.ErrCycle)

	run, err := f.store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunFailed, run.Status)
	assert.Empty(t, run.FailedNodeID)

	for _, nodeID := range []string{"a", "b"} {
		assert.Equal(t, workflow.NodePending, f.nodeResult(t, "run-1", nodeID).Status,
			"cycle detection happens before any node result is written")
	}
	assert.Zero(t, f.prompt.calls())
}

func TestRunWorkflowNodeFailureFailsRun(t *testing.T) {
	f := newFixture(t)
	nodeList, edges := linearGraph()
	f.seedWorkflow(t, nodeList, edges)
	f.createRun(t, "p", "g")
	boom := errors.New("backend exploded")
	f.gen.execute = func(config, inputs map[string]any) (map[string]any, error) {
		return nil, boom
	}
	ctx := context.Background()

	err := f.runner.RunWorkflow(ctx, "run-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, engerrors.CodeNodeExecution, engerrors.CodeOf(err))

	run, err := f.store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunFailed, run.Status)
	assert.Equal(t, "g", run.FailedNodeID)
	assert.Contains(t, run.Error, "backend exploded")

	assert.Equal(t, workflow.NodeCompleted, f.nodeResult(t, "run-1", "p").Status,
		"upstream results survive a downstream failure")
	genResult := f.nodeResult(t, "run-1", "g")
	assert.Equal(t, workflow.NodeFailed, genResult.Status)
	assert.NotEmpty(t, genResult.Error)
}

func TestRunWorkflowInsufficientCreditsFailsRun(t *testing.T) {
	f := newFixture(t)
	nodeList, edges := linearGraph()
	f.seedWorkflow(t, nodeList, edges)
	f.store.SetCredits("tenant-1", 3)
	f.createRun(t, "p", "g")
	ctx := context.Background()

	err := f.runner.RunWorkflow(ctx, "run-1")
	require.Error(t, err)
	assert.True(t, engerrors.IsInsufficientCredits(err))

	run, err := f.store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunFailed, run.Status)
	assert.Equal(t, "g", run.FailedNodeID)

	tc, err := f.store.GetTenantContext(ctx, "tenant-1", "model-1")
	require.NoError(t, err)
	assert.Equal(t, 3, tc.Credits, "a refused deduction must not change the balance")
}

func TestRunWorkflowConfigValidationFailure(t *testing.T) {
	f := newFixture(t)
	f.seedWorkflow(t, []workflow.Node{
		{ID: "g", Kind: workflow.KindGenerateImage, Config: map[string]any{}},
	}, nil)
	f.createRun(t, "g")

	err := f.runner.RunWorkflow(context.Background(), "run-1")
	require.Error(t, err)
	assert.Equal(t, engerrors.CodeValidation, engerrors.CodeOf(err))
	assert.Zero(t, f.gen.calls(), "a node with invalid config never executes")
}

func TestRunWorkflowRejectsTerminalRun(t *testing.T) {
	f := newFixture(t)
	nodeList, edges := linearGraph()
	f.seedWorkflow(t, nodeList, edges)
	run := f.createRun(t, "p", "g")
	ctx := context.Background()

	run.Status = workflow.RunCancelled
	require.NoError(t, f.store.UpdateRun(ctx, run))

	err := f.runner.RunWorkflow(ctx, "run-1")
	assert.ErrorIs(t, err, engerrors.ErrRunTerminal)
}

func TestRunWorkflowSuspendsAtGate(t *testing.T) {
	f := newFixture(t)
	f.seedWorkflow(t, []workflow.Node{
		{ID: "g", Kind: workflow.KindGenerateImage, Config: map[string]any{"model": "flux"}},
		{ID: "rv", Kind: workflow.KindReview, Config: map[string]any{}},
	}, []workflow.Edge{
		{SourceNodeID: "g", SourcePort: "image", TargetNodeID: "rv", TargetPort: "input"},
	})
	f.createRun(t, "g", "rv")
	ctx := context.Background()

	require.NoError(t, f.runner.RunWorkflow(ctx, "run-1"))

	run, err := f.store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunWaitingForReview, run.Status)
	assert.Nil(t, run.CompletedAt)

	gateResult := f.nodeResult(t, "run-1", "rv")
	assert.Equal(t, workflow.NodeWaitingForReview, gateResult.Status)
	assert.Equal(t, "data:image/png;base64,ONE", gateResult.Output["output"])

	// Re-running a suspended run is a no-op until approval.
	require.NoError(t, f.runner.RunWorkflow(ctx, "run-1"))
	assert.Equal(t, 1, f.review.calls())
}

func TestApproveResumesSuspendedRun(t *testing.T) {
	f := newFixture(t)
	f.seedWorkflow(t, []workflow.Node{
		{ID: "rv", Kind: workflow.KindReview, Config: map[string]any{}},
		{ID: "g", Kind: workflow.KindGenerateImage, Config: map[string]any{"model": "flux"}},
	}, []workflow.Edge{
		{SourceNodeID: "rv", SourcePort: "output", TargetNodeID: "g", TargetPort: "prompt"},
	})
	f.createRun(t, "rv", "g")
	f.review.execute = func(config, inputs map[string]any) (map[string]any, error) {
		return map[string]any{"output": "approved prompt"}, nil
	}
	ctx := context.Background()

	require.NoError(t, f.runner.RunWorkflow(ctx, "run-1"))
	require.NoError(t, f.runner.Approve(ctx, "run-1", "rv", nil))
	f.supervisor.Wait()

	run, err := f.store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunCompleted, run.Status)
	assert.Equal(t, workflow.NodeCompleted, f.nodeResult(t, "run-1", "rv").Status)
	assert.Equal(t, workflow.NodeCompleted, f.nodeResult(t, "run-1", "g").Status)
}

func TestApproveWithSelectionNarrowsBatch(t *testing.T) {
	f := newFixture(t)
	f.seedWorkflow(t, []workflow.Node{
		{ID: "g", Kind: workflow.KindGenerateImage, Config: map[string]any{"model": "flux"}},
		{ID: "pk", Kind: workflow.KindPick, Config: map[string]any{}},
	}, []workflow.Edge{
		{SourceNodeID: "g", SourcePort: "images", TargetNodeID: "pk", TargetPort: "images"},
	})
	f.createRun(t, "g", "pk")
	ctx := context.Background()

	require.NoError(t, f.runner.RunWorkflow(ctx, "run-1"))
	require.Equal(t, workflow.NodeWaitingForReview, f.nodeResult(t, "run-1", "pk").Status)

	selection := 1
	require.NoError(t, f.runner.Approve(ctx, "run-1", "pk", &selection))
	f.supervisor.Wait()

	pickResult := f.nodeResult(t, "run-1", "pk")
	assert.Equal(t, workflow.NodeCompleted, pickResult.Status)
	assert.Equal(t, "data:image/png;base64,TWO", pickResult.Output["image"])
	assert.Equal(t, []any{"data:image/png;base64,TWO"}, pickResult.Output["images"])
}

func TestApproveSelectionOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.seedWorkflow(t, []workflow.Node{
		{ID: "g", Kind: workflow.KindGenerateImage, Config: map[string]any{"model": "flux"}},
		{ID: "pk", Kind: workflow.KindPick, Config: map[string]any{}},
	}, []workflow.Edge{
		{SourceNodeID: "g", SourcePort: "images", TargetNodeID: "pk", TargetPort: "images"},
	})
	f.createRun(t, "g", "pk")
	ctx := context.Background()
	require.NoError(t, f.runner.RunWorkflow(ctx, "run-1"))

	selection := 5
	err := f.runner.Approve(ctx, "run-1", "pk", &selection)
	require.Error(t, err)
	assert.Equal(t, engerrors.CodeValidation, engerrors.CodeOf(err))

	// The gate stays paused after the rejected approval.
	assert.Equal(t, workflow.NodeWaitingForReview, f.nodeResult(t, "run-1", "pk").Status)
}

func TestApproveRejectsWrongState(t *testing.T) {
	f := newFixture(t)
	f.seedWorkflow(t, []workflow.Node{
		{ID: "g", Kind: workflow.KindGenerateImage, Config: map[string]any{"model": "flux"}},
		{ID: "rv", Kind: workflow.KindReview, Config: map[string]any{}},
	}, []workflow.Edge{
		{SourceNodeID: "g", SourcePort: "image", TargetNodeID: "rv", TargetPort: "input"},
	})
	f.createRun(t, "g", "rv")
	ctx := context.Background()

	// Not suspended yet.
	err := f.runner.Approve(ctx, "run-1", "rv", nil)
	assert.ErrorIs(t, err, engerrors.ErrRunNotWaiting)

	require.NoError(t, f.runner.RunWorkflow(ctx, "run-1"))

	// Wrong node id.
	err = f.runner.Approve(ctx, "run-1", "g", nil)
	assert.ErrorIs(t, err, engerrors.ErrRunNotWaiting)
}

func TestCancelSkipsRemainingNodes(t *testing.T) {
	f := newFixture(t)
	f.seedWorkflow(t, []workflow.Node{
		{ID: "g", Kind: workflow.KindGenerateImage, Config: map[string]any{"model": "flux"}},
		{ID: "rv", Kind: workflow.KindReview, Config: map[string]any{}},
	}, []workflow.Edge{
		{SourceNodeID: "g", SourcePort: "image", TargetNodeID: "rv", TargetPort: "input"},
	})
	f.createRun(t, "g", "rv")
	ctx := context.Background()

	require.NoError(t, f.runner.Cancel(ctx, "run-1"))

	run, err := f.store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunCancelled, run.Status)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, workflow.NodeSkipped, f.nodeResult(t, "run-1", "g").Status)
	assert.Equal(t, workflow.NodeSkipped, f.nodeResult(t, "run-1", "rv").Status)

	// Cancelling twice is rejected.
	err = f.runner.Cancel(ctx, "run-1")
	assert.ErrorIs(t, err, engerrors.ErrRunTerminal)

	// Execution after cancellation stops without running nodes.
	assert.ErrorIs(t, f.runner.RunWorkflow(ctx, "run-1"), engerrors.ErrRunTerminal)
	assert.Zero(t, f.gen.calls())
}

func TestCancelDuringNodeExecutionRecordsResultWithoutCharge(t *testing.T) {
	f := newFixture(t)
	nodeList, edges := linearGraph()
	f.seedWorkflow(t, nodeList, edges)
	f.createRun(t, "p", "g")
	ctx := context.Background()

	// Cancel lands while the generate node is executing.
	f.gen.execute = func(config, inputs map[string]any) (map[string]any, error) {
		require.NoError(t, f.runner.Cancel(ctx, "run-1"))
		return map[string]any{"image": "data:image/png;base64,LATE"}, nil
	}

	require.NoError(t, f.runner.RunWorkflow(ctx, "run-1"))

	run, err := f.store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunCancelled, run.Status)
	assert.Zero(t, run.CreditsUsed)

	// The in-flight node's result still lands, uncharged.
	genResult := f.nodeResult(t, "run-1", "g")
	assert.Equal(t, workflow.NodeCompleted, genResult.Status)
	assert.Equal(t, "data:image/png;base64,LATE", genResult.Output["image"])
	assert.Zero(t, genResult.CreditsUsed)

	tc, err := f.store.GetTenantContext(ctx, "tenant-1", "model-1")
	require.NoError(t, err)
	assert.Equal(t, 100, tc.Credits, "a cancelled run never deducts credits")
}

func TestStartRunValidatesWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	model := "model-1"

	_, err := f.runner.StartRun(ctx, "ghost")
	assert.Error(t, err)

	f.store.PutWorkflow(&workflow.Workflow{
		ID: "draft", TenantID: "tenant-1", ModelID: &model, Status: workflow.StatusDraft,
		Nodes: []workflow.Node{{ID: "p", Kind: workflow.KindPrompt}},
	})
	_, err = f.runner.StartRun(ctx, "draft")
	assert.Error(t, err, "only active workflows run")

	f.store.PutWorkflow(&workflow.Workflow{
		ID: "template", TenantID: "tenant-1", Status: workflow.StatusActive,
		Nodes: []workflow.Node{{ID: "p", Kind: workflow.KindPrompt}},
	})
	_, err = f.runner.StartRun(ctx, "template")
	assert.Error(t, err, "template workflows have no target model")

	f.store.PutWorkflow(&workflow.Workflow{
		ID: "empty", TenantID: "tenant-1", ModelID: &model, Status: workflow.StatusActive,
	})
	_, err = f.runner.StartRun(ctx, "empty")
	assert.Error(t, err, "empty graphs never run")
}

func TestStartRunExecutesInBackground(t *testing.T) {
	f := newFixture(t)
	nodeList, edges := linearGraph()
	f.seedWorkflow(t, nodeList, edges)
	ctx := context.Background()

	run, err := f.runner.StartRun(ctx, "wf-1")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	f.supervisor.Wait()

	finished, err := f.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunCompleted, finished.Status)
}

func TestTopologicalOrderRespectsDependencies(t *testing.T) {
	f := newFixture(t)
	// Diamond: a feeds b and c, both feed d.
	f.seedWorkflow(t, []workflow.Node{
		{ID: "d", Kind: workflow.KindPrompt, Config: map[string]any{"template": "d"}},
		{ID: "b", Kind: workflow.KindPrompt, Config: map[string]any{"template": "b"}},
		{ID: "c", Kind: workflow.KindPrompt, Config: map[string]any{"template": "c"}},
		{ID: "a", Kind: workflow.KindPrompt, Config: map[string]any{"template": "a"}},
	}, []workflow.Edge{
		{SourceNodeID: "a", SourcePort: "text", TargetNodeID: "b", TargetPort: "context"},
		{SourceNodeID: "a", SourcePort: "text", TargetNodeID: "c", TargetPort: "context"},
		{SourceNodeID: "b", SourcePort: "text", TargetNodeID: "d", TargetPort: "context"},
		{SourceNodeID: "c", SourcePort: "text", TargetNodeID: "d", TargetPort: "context"},
	})
	f.createRun(t, "a", "b", "c", "d")

	var mu sync.Mutex
	var order []string
	f.prompt.execute = func(config, inputs map[string]any) (map[string]any, error) {
		mu.Lock()
		order = append(order, config["template"].(string))
		mu.Unlock()
		return map[string]any{"text": config["template"]}, nil
	}

	require.NoError(t, f.runner.RunWorkflow(context.Background(), "run-1"))
	require.Len(t, order, 4)
	assert.Equal(t, "a", order[0])
	assert.Equal(t, "d", order[3])
}

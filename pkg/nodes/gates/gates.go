// Package gates implements the node kinds that pause a run for human
// approval: review (pass-through inspection) and pick (narrow a batch to one
// item under human selection).
package gates

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/nodes"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// Review passes its input through unchanged and signals the runner to pause
// until an external approval arrives.
type Review struct{}

// NewReview creates the review gate capability.
func NewReview() *Review { return &Review{} }

func (r *Review) Kind() workflow.NodeKind { return workflow.KindReview }

func (r *Review) InputPorts() []workflow.Port {
	return []workflow.Port{{Name: "input", Type: workflow.PortAnyMedia, Required: true}}
}

func (r *Review) OutputPorts() []workflow.Port {
	return []workflow.Port{{Name: "output", Type: workflow.PortAnyMedia}}
}

func (r *Review) ConfigSchema() nodes.Schema {
	return nodes.Schema{
		"instructions": {Type: nodes.FieldString},
	}
}

// CreditCost is zero: gates consume no compute.
func (r *Review) CreditCost(config map[string]any) int { return 0 }

// Execute produces the pass-through output the approver will inspect.
func (r *Review) Execute(ctx context.Context, config map[string]any, inputs map[string]any, runCtx nodes.RunContext) (map[string]any, error) {
	return map[string]any{"output": inputs["input"]}, nil
}

// Pick holds an image batch until a human selects one item. The runner
// applies the approval's selection index to the pass-through output,
// crossing the batch/single port boundary.
type Pick struct{}

// NewPick creates the pick gate capability.
func NewPick() *Pick { return &Pick{} }

func (p *Pick) Kind() workflow.NodeKind { return workflow.KindPick }

func (p *Pick) InputPorts() []workflow.Port {
	return []workflow.Port{{Name: "images", Type: workflow.PortImageBatch, Required: true}}
}

func (p *Pick) OutputPorts() []workflow.Port {
	return []workflow.Port{
		{Name: "image", Type: workflow.PortImage},
		{Name: "images", Type: workflow.PortImageBatch},
	}
}

func (p *Pick) ConfigSchema() nodes.Schema {
	return nodes.Schema{
		"instructions": {Type: nodes.FieldString},
	}
}

func (p *Pick) CreditCost(config map[string]any) int { return 0 }

// Execute stages the full batch. Until approval, "image" defaults to the
// first item; the approval's selection index replaces it.
func (p *Pick) Execute(ctx context.Context, config map[string]any, inputs map[string]any, runCtx nodes.RunContext) (map[string]any, error) {
	output := map[string]any{"images": inputs["images"]}
	if batch, ok := inputs["images"].([]string); ok && len(batch) > 0 {
		output["image"] = batch[0]
	} else if batch, ok := inputs["images"].([]any); ok && len(batch) > 0 {
		output["image"] = batch[0]
	}
	return output, nil
}

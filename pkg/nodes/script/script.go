// Package script implements the script node kind: a sandboxed JavaScript
// transformation over text flowing between nodes.
package script

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/nodes"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

const defaultTimeoutMs = 5000

// Script executes a user-supplied JavaScript snippet against the node's text
// input. The VM is sandboxed: host globals are removed, built-ins are frozen,
// and execution is interrupted at the configured timeout.
type Script struct{}

// New creates the script capability.
func New() *Script { return &Script{} }

func (s *Script) Kind() workflow.NodeKind { return workflow.KindScript }

func (s *Script) InputPorts() []workflow.Port {
	return []workflow.Port{{Name: "text", Type: workflow.PortText, Required: true}}
}

func (s *Script) OutputPorts() []workflow.Port {
	return []workflow.Port{{Name: "text", Type: workflow.PortText}}
}

func (s *Script) ConfigSchema() nodes.Schema {
	min := float64(100)
	max := float64(60000)
	return nodes.Schema{
		"script":     {Type: nodes.FieldString, Required: true},
		"timeout_ms": {Type: nodes.FieldInteger, Default: defaultTimeoutMs, Min: &min, Max: &max},
	}
}

// CreditCost charges one credit per execution for the sandbox overhead.
func (s *Script) CreditCost(config map[string]any) int { return 1 }

// Execute evaluates the script with the text input bound as `input`. The
// script's final expression value becomes the output text.
func (s *Script) Execute(ctx context.Context, config map[string]any, inputs map[string]any, runCtx nodes.RunContext) (map[string]any, error) {
	source := nodes.StringField(config, "script", "")
	timeout := time.Duration(nodes.IntField(config, "timeout_ms", defaultTimeoutMs)) * time.Millisecond

	input, ok := inputs["text"].(string)
	if !ok {
		return nil, engerrors.Validation("text input is required")
	}

	vm := goja.New()
	if err := applySandbox(vm); err != nil {
		return nil, fmt.Errorf("sandbox setup failed: %w", err)
	}
	if err := vm.Set("input", input); err != nil {
		return nil, fmt.Errorf("failed to bind input: %w", err)
	}

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("script timeout")
	})
	defer timer.Stop()

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt("context cancelled")
	})
	defer stop()

	value, err := vm.RunString(source)
	if err != nil {
		if _, interrupted := err.(*goja.InterruptedError); interrupted {
			return nil, fmt.Errorf("script interrupted: %w", err)
		}
		return nil, fmt.Errorf("script failed: %w", err)
	}

	output := ""
	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		output = value.String()
	}
	return map[string]any{"text": output}, nil
}

// Package prompt implements the prompt node kind: it composes the text fed
// into downstream generation nodes.
package prompt

import (
	"context"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/nodes"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// Prompt renders a text template into a prompt string. Tenant and model
// variables in the template are already substituted by the time Execute runs;
// the optional context input is appended to ground the prompt in upstream
// text.
type Prompt struct{}

// New creates the prompt capability.
func New() *Prompt { return &Prompt{} }

func (p *Prompt) Kind() workflow.NodeKind { return workflow.KindPrompt }

func (p *Prompt) InputPorts() []workflow.Port {
	return []workflow.Port{{Name: "context", Type: workflow.PortText}}
}

func (p *Prompt) OutputPorts() []workflow.Port {
	return []workflow.Port{{Name: "text", Type: workflow.PortText}}
}

func (p *Prompt) ConfigSchema() nodes.Schema {
	return nodes.Schema{
		"template":  {Type: nodes.FieldString, Required: true},
		"separator": {Type: nodes.FieldString, Default: "\n\n"},
	}
}

func (p *Prompt) CreditCost(config map[string]any) int { return 0 }

func (p *Prompt) Execute(ctx context.Context, config map[string]any, inputs map[string]any, runCtx nodes.RunContext) (map[string]any, error) {
	text := nodes.StringField(config, "template", "")
	if contextText, ok := inputs["context"].(string); ok && contextText != "" {
		separator := nodes.StringField(config, "separator", "\n\n")
		text = strings.TrimSpace(text) + separator + contextText
	}
	return map[string]any{"text": text}, nil
}

// Package textops implements the text node kind: small transformations over
// text flowing between nodes.
package textops

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/nodes"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// TextOps applies one named operation to its text input.
type TextOps struct{}

// New creates the text capability.
func New() *TextOps { return &TextOps{} }

func (t *TextOps) Kind() workflow.NodeKind { return workflow.KindText }

func (t *TextOps) InputPorts() []workflow.Port {
	return []workflow.Port{{Name: "text", Type: workflow.PortText, Required: true}}
}

func (t *TextOps) OutputPorts() []workflow.Port {
	return []workflow.Port{{Name: "text", Type: workflow.PortText}}
}

func (t *TextOps) ConfigSchema() nodes.Schema {
	return nodes.Schema{
		"operation": {
			Type:     nodes.FieldString,
			Required: true,
			Enum:     []string{"uppercase", "lowercase", "title", "trim", "replace", "prefix", "suffix"},
		},
		"search":  {Type: nodes.FieldString},
		"replace": {Type: nodes.FieldString},
		"value":   {Type: nodes.FieldString},
	}
}

func (t *TextOps) CreditCost(config map[string]any) int { return 0 }

func (t *TextOps) Execute(ctx context.Context, config map[string]any, inputs map[string]any, runCtx nodes.RunContext) (map[string]any, error) {
	text, ok := inputs["text"].(string)
	if !ok {
		return nil, engerrors.Validation("text input is required")
	}

	operation := nodes.StringField(config, "operation", "")
	switch operation {
	case "uppercase":
		text = strings.ToUpper(text)
	case "lowercase":
		text = strings.ToLower(text)
	case "title":
		text = cases.Title(language.Und).String(text)
	case "trim":
		text = strings.TrimSpace(text)
	case "replace":
		search := nodes.StringField(config, "search", "")
		if search == "" {
			return nil, engerrors.Validation("replace operation requires a search value")
		}
		text = strings.ReplaceAll(text, search, nodes.StringField(config, "replace", ""))
	case "prefix":
		text = nodes.StringField(config, "value", "") + text
	case "suffix":
		text = text + nodes.StringField(config, "value", "")
	default:
		return nil, engerrors.Validation(fmt.Sprintf("unknown text operation %q", operation))
	}

	return map[string]any{"text": text}, nil
}

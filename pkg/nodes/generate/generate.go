// Package generate implements the generation and editing node kinds. Each
// node dispatches on its `model` config field to a backend adapter; adapters
// route either through the compute job router (self-hosted models) or through
// the per-tenant queue plus retry wrapper (hosted APIs).
package generate

import (
	"context"
	"fmt"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/nodes"
	"github.com/wehubfusion/Daedalus/pkg/normalize"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

const (
	imageCreditCost          = 5
	videoCreditCostPerSecond = 5
)

// ImageGen implements the generate_image kind.
type ImageGen struct {
	adapters *Adapters
}

// NewImage creates the generate_image capability.
func NewImage(adapters *Adapters) *ImageGen {
	return &ImageGen{adapters: adapters}
}

func (g *ImageGen) Kind() workflow.NodeKind { return workflow.KindGenerateImage }

func (g *ImageGen) InputPorts() []workflow.Port {
	return []workflow.Port{{Name: "prompt", Type: workflow.PortText}}
}

func (g *ImageGen) OutputPorts() []workflow.Port {
	return []workflow.Port{
		{Name: "image", Type: workflow.PortImage},
		{Name: "images", Type: workflow.PortImageBatch},
	}
}

func (g *ImageGen) ConfigSchema() nodes.Schema {
	one, eight := float64(1), float64(8)
	minDim, maxDim := float64(256), float64(2048)
	return nodes.Schema{
		"model":      {Type: nodes.FieldString, Required: true},
		"prompt":     {Type: nodes.FieldString},
		"width":      {Type: nodes.FieldInteger, Default: 1024, Min: &minDim, Max: &maxDim},
		"height":     {Type: nodes.FieldInteger, Default: 1024, Min: &minDim, Max: &maxDim},
		"batch_size": {Type: nodes.FieldInteger, Default: 1, Min: &one, Max: &eight},
	}
}

func (g *ImageGen) CreditCost(config map[string]any) int {
	return imageCreditCost * nodes.IntField(config, "batch_size", 1)
}

func (g *ImageGen) Execute(ctx context.Context, config map[string]any, inputs map[string]any, runCtx nodes.RunContext) (map[string]any, error) {
	request, adapter, err := buildRequest(g.adapters, config, inputs, nil)
	if err != nil {
		return nil, err
	}
	result, err := adapter.Invoke(ctx, request, runCtx)
	if err != nil {
		return nil, err
	}
	return mediaOutput("image", result), nil
}

// EditImage implements the edit_image kind: same dispatch as generation,
// with a required source image input.
type EditImage struct {
	adapters *Adapters
}

// NewEditImage creates the edit_image capability.
func NewEditImage(adapters *Adapters) *EditImage {
	return &EditImage{adapters: adapters}
}

func (g *EditImage) Kind() workflow.NodeKind { return workflow.KindEditImage }

func (g *EditImage) InputPorts() []workflow.Port {
	return []workflow.Port{
		{Name: "image", Type: workflow.PortImage, Required: true},
		{Name: "prompt", Type: workflow.PortText},
	}
}

func (g *EditImage) OutputPorts() []workflow.Port {
	return []workflow.Port{
		{Name: "image", Type: workflow.PortImage},
		{Name: "images", Type: workflow.PortImageBatch},
	}
}

func (g *EditImage) ConfigSchema() nodes.Schema {
	one, eight := float64(1), float64(8)
	return nodes.Schema{
		"model":      {Type: nodes.FieldString, Required: true},
		"prompt":     {Type: nodes.FieldString},
		"strength":   {Type: nodes.FieldNumber, Default: 0.75},
		"batch_size": {Type: nodes.FieldInteger, Default: 1, Min: &one, Max: &eight},
	}
}

func (g *EditImage) CreditCost(config map[string]any) int {
	return imageCreditCost * nodes.IntField(config, "batch_size", 1)
}

func (g *EditImage) Execute(ctx context.Context, config map[string]any, inputs map[string]any, runCtx nodes.RunContext) (map[string]any, error) {
	image, ok := inputs["image"].(string)
	if !ok || image == "" {
		return nil, engerrors.Validation("image input is required")
	}
	request, adapter, err := buildRequest(g.adapters, config, inputs, map[string]any{"image": image})
	if err != nil {
		return nil, err
	}
	result, err := adapter.Invoke(ctx, request, runCtx)
	if err != nil {
		return nil, err
	}
	return mediaOutput("image", result), nil
}

// VideoGen implements the generate_video kind.
type VideoGen struct {
	adapters *Adapters
}

// NewVideo creates the generate_video capability.
func NewVideo(adapters *Adapters) *VideoGen {
	return &VideoGen{adapters: adapters}
}

func (g *VideoGen) Kind() workflow.NodeKind { return workflow.KindGenerateVideo }

func (g *VideoGen) InputPorts() []workflow.Port {
	return []workflow.Port{
		{Name: "prompt", Type: workflow.PortText},
		{Name: "image", Type: workflow.PortImage},
	}
}

func (g *VideoGen) OutputPorts() []workflow.Port {
	return []workflow.Port{{Name: "video", Type: workflow.PortVideo}}
}

func (g *VideoGen) ConfigSchema() nodes.Schema {
	min, max := float64(1), float64(30)
	return nodes.Schema{
		"model":            {Type: nodes.FieldString, Required: true},
		"prompt":           {Type: nodes.FieldString},
		"duration_seconds": {Type: nodes.FieldInteger, Default: 5, Min: &min, Max: &max},
	}
}

func (g *VideoGen) CreditCost(config map[string]any) int {
	return videoCreditCostPerSecond * nodes.IntField(config, "duration_seconds", 5)
}

func (g *VideoGen) Execute(ctx context.Context, config map[string]any, inputs map[string]any, runCtx nodes.RunContext) (map[string]any, error) {
	extra := map[string]any{}
	if image, ok := inputs["image"].(string); ok && image != "" {
		extra["image"] = image
	}
	request, adapter, err := buildRequest(g.adapters, config, inputs, extra)
	if err != nil {
		return nil, err
	}
	result, err := adapter.Invoke(ctx, request, runCtx)
	if err != nil {
		return nil, err
	}
	output := map[string]any{}
	if result.Primary != nil {
		output["video"] = *result.Primary
	}
	return output, nil
}

// buildRequest assembles the backend request from config and inputs. A prompt
// arriving on the input port overrides the configured prompt.
func buildRequest(adapters *Adapters, config map[string]any, inputs map[string]any, extra map[string]any) (map[string]any, ModelAdapter, error) {
	model := nodes.StringField(config, "model", "")
	adapter, err := adapters.Get(model)
	if err != nil {
		return nil, nil, err
	}

	request := make(map[string]any, len(config)+len(extra))
	for k, v := range config {
		request[k] = v
	}
	if prompt, ok := inputs["prompt"].(string); ok && prompt != "" {
		request["prompt"] = prompt
	}
	for k, v := range extra {
		request[k] = v
	}
	if _, ok := request["prompt"]; !ok {
		return nil, nil, engerrors.Validation(fmt.Sprintf("model %s requires a prompt", model))
	}
	return request, adapter, nil
}

// mediaOutput maps a normalized result onto the image output ports.
func mediaOutput(primaryPort string, result normalize.Result) map[string]any {
	output := map[string]any{"images": result.All}
	if result.Primary != nil {
		output[primaryPort] = *result.Primary
	}
	return output
}

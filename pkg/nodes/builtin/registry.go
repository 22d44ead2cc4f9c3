// Package builtin assembles the closed node capability set into a registry.
package builtin

import (
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/compute"
	"github.com/wehubfusion/Daedalus/pkg/nodes"
	"github.com/wehubfusion/Daedalus/pkg/nodes/gates"
	"github.com/wehubfusion/Daedalus/pkg/nodes/generate"
	"github.com/wehubfusion/Daedalus/pkg/nodes/prompt"
	"github.com/wehubfusion/Daedalus/pkg/nodes/script"
	"github.com/wehubfusion/Daedalus/pkg/nodes/textops"
	"github.com/wehubfusion/Daedalus/pkg/ratequeue"
	"github.com/wehubfusion/Daedalus/pkg/retry"
)

// Deps are the shared services generation adapters route through.
type Deps struct {
	// Router submits self-hosted jobs; nil disables self-hosted models
	Router *compute.Router
	// Queue throttles hosted API calls per tenant
	Queue *ratequeue.Queue
	// Retry wraps hosted API calls
	Retry retry.Config
	// SelfHostedModels lists model names served by the compute pools
	SelfHostedModels []string
	// HostedModels maps model names to their hosted API backends
	HostedModels map[string]generate.SyncBackend
	// Logger is shared by the adapters
	Logger *zap.Logger
}

// NewRegistry creates the registry with every built-in capability registered.
func NewRegistry(deps Deps) *nodes.Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	adapters := generate.NewAdapters()
	if deps.Router != nil {
		for _, model := range deps.SelfHostedModels {
			adapters.Register(generate.NewSelfHostedAdapter(model, deps.Router, deps.Logger))
		}
	}
	for model, backend := range deps.HostedModels {
		adapters.Register(generate.NewHostedAPIAdapter(model, backend, deps.Queue, deps.Retry, deps.Logger))
	}

	registry := nodes.NewRegistry()
	registry.Register(generate.NewImage(adapters))
	registry.Register(generate.NewEditImage(adapters))
	registry.Register(generate.NewVideo(adapters))
	registry.Register(prompt.New())
	registry.Register(textops.New())
	registry.Register(script.New())
	registry.Register(gates.NewReview())
	registry.Register(gates.NewPick())
	return registry
}

package generate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/compute"
	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/nodes"
	"github.com/wehubfusion/Daedalus/pkg/normalize"
	"github.com/wehubfusion/Daedalus/pkg/ratequeue"
	"github.com/wehubfusion/Daedalus/pkg/retry"
)

// SyncBackend is the narrow contract of a hosted generation API: one call
// runs the job and returns the raw completion payload.
type SyncBackend interface {
	Generate(ctx context.Context, request map[string]any) (any, error)
}

// ModelAdapter turns a generation request into a backend call for one model
// and hands the raw result through the output normalizer.
type ModelAdapter interface {
	// Model is the config value this adapter serves
	Model() string
	// Invoke performs the generation and returns the normalized media result
	Invoke(ctx context.Context, request map[string]any, runCtx nodes.RunContext) (normalize.Result, error)
}

// Adapters is the model-name dispatch table shared by the generation
// capabilities.
type Adapters struct {
	byModel map[string]ModelAdapter
}

// NewAdapters creates an empty adapter table.
func NewAdapters() *Adapters {
	return &Adapters{byModel: make(map[string]ModelAdapter)}
}

// Register adds an adapter under its model name.
func (a *Adapters) Register(adapter ModelAdapter) {
	a.byModel[adapter.Model()] = adapter
}

// Get returns the adapter for a model name.
func (a *Adapters) Get(model string) (ModelAdapter, error) {
	adapter, ok := a.byModel[model]
	if !ok {
		return nil, engerrors.Validation(fmt.Sprintf("no adapter for model %q", model))
	}
	return adapter, nil
}

// Models lists the registered model names.
func (a *Adapters) Models() []string {
	models := make([]string, 0, len(a.byModel))
	for m := range a.byModel {
		models = append(models, m)
	}
	return models
}

// SelfHostedAdapter serves models running on our own compute pools. Jobs go
// through the router (dedicated first, serverless fallback) and are polled to
// completion.
type SelfHostedAdapter struct {
	model  string
	router *compute.Router
	logger *zap.Logger
}

// NewSelfHostedAdapter creates an adapter that submits through the job router.
func NewSelfHostedAdapter(model string, router *compute.Router, logger *zap.Logger) *SelfHostedAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelfHostedAdapter{model: model, router: router, logger: logger}
}

func (a *SelfHostedAdapter) Model() string { return a.model }

func (a *SelfHostedAdapter) Invoke(ctx context.Context, request map[string]any, runCtx nodes.RunContext) (normalize.Result, error) {
	payload := map[string]any{
		"model": a.model,
		"input": request,
	}
	submission, err := a.router.Submit(ctx, payload)
	if err != nil {
		return normalize.Result{}, err
	}
	a.logger.Info("Generation job submitted",
		zap.String("model", a.model),
		zap.String("job_id", submission.JobID),
		zap.String("pool", string(submission.Pool)),
		zap.Bool("used_fallback", submission.UsedFallback))

	raw, err := a.router.AwaitResult(ctx, submission.JobID)
	if err != nil {
		return normalize.Result{}, err
	}
	result := normalize.Normalize(raw)
	if result.Empty() {
		return normalize.Result{}, engerrors.NewError(engerrors.CodeUnrecognizedOutput,
			fmt.Sprintf("model %s returned no recognizable media", a.model),
			engerrors.ErrNoMediaInOutput)
	}
	return result, nil
}

// HostedAPIAdapter serves models behind third-party hosted APIs. Calls are
// serialized per tenant through the request queue and wrapped in
// retry-with-backoff.
type HostedAPIAdapter struct {
	model   string
	backend SyncBackend
	queue   *ratequeue.Queue
	retry   retry.Config
	logger  *zap.Logger
}

// NewHostedAPIAdapter creates an adapter that calls a hosted API through the
// per-tenant throttle and the retry wrapper.
func NewHostedAPIAdapter(model string, backend SyncBackend, queue *ratequeue.Queue, retryCfg retry.Config, logger *zap.Logger) *HostedAPIAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostedAPIAdapter{model: model, backend: backend, queue: queue, retry: retryCfg, logger: logger}
}

func (a *HostedAPIAdapter) Model() string { return a.model }

func (a *HostedAPIAdapter) Invoke(ctx context.Context, request map[string]any, runCtx nodes.RunContext) (normalize.Result, error) {
	var raw any
	call := func(ctx context.Context) error {
		return retry.Do(ctx, a.retry, func(ctx context.Context) error {
			var err error
			raw, err = a.backend.Generate(ctx, request)
			return err
		})
	}

	var err error
	if a.queue != nil {
		err = a.queue.Do(ctx, runCtx.TenantID, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return normalize.Result{}, err
	}

	result := normalize.Normalize(raw)
	if result.Empty() {
		return normalize.Result{}, engerrors.NewError(engerrors.CodeUnrecognizedOutput,
			fmt.Sprintf("model %s returned no recognizable media", a.model),
			engerrors.ErrNoMediaInOutput)
	}
	return result, nil
}

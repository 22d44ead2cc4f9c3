// Package compute routes generation jobs to compute pools: a warm dedicated
// pool tried first, and an always-available serverless pool as fallback.
package compute

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Pool identifies which compute pool accepted a job.
type Pool string

const (
	PoolDedicated  Pool = "dedicated"
	PoolServerless Pool = "serverless"
)

// JobStatus is one poll observation of an asynchronous job.
type JobStatus struct {
	// Done reports whether the job reached a terminal state
	Done bool
	// Output is the raw completion payload when Done and successful
	Output any
	// Err holds the backend failure message when Done and failed
	Err string
}

// JobBackend is the narrow contract a compute pool exposes: submit a payload,
// then poll by job id until terminal.
type JobBackend interface {
	Submit(ctx context.Context, payload map[string]any) (jobID string, err error)
	Poll(ctx context.Context, jobID string) (*JobStatus, error)
}

// Submission is the tagged result of a routed job submission.
type Submission struct {
	// JobID is the backend-assigned job identifier
	JobID string
	// Pool is the pool that accepted the job
	Pool Pool
	// UsedFallback reports whether the serverless pool was used
	UsedFallback bool
	// FallbackReason is why the dedicated attempt failed, when it did
	FallbackReason string
}

// Config controls timeouts, polling and route-table eviction.
type Config struct {
	// DedicatedTimeout bounds the dedicated submission attempt. The timeout
	// doubles as the health check: there is no separate probe call.
	DedicatedTimeout time.Duration
	// SubmitTimeout bounds the serverless submission attempt
	SubmitTimeout time.Duration
	// PollInterval is the fixed delay between status polls
	PollInterval time.Duration
	// MaxPollAttempts bounds how many polls AwaitResult performs
	MaxPollAttempts int
	// RouteTTL is how long a job-id route survives without being refreshed
	RouteTTL time.Duration
	// SweepInterval is how often expired routes are evicted
	SweepInterval time.Duration
}

// DefaultConfig returns the routing configuration used for self-hosted jobs.
func DefaultConfig() Config {
	return Config{
		DedicatedTimeout: 30 * time.Second,
		SubmitTimeout:    30 * time.Second,
		PollInterval:     2 * time.Second,
		MaxPollAttempts:  150,
		RouteTTL:         2 * time.Hour,
		SweepInterval:    10 * time.Minute,
	}
}

func (c *Config) applyDefaults() {
	if c.DedicatedTimeout <= 0 {
		c.DedicatedTimeout = 30 * time.Second
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = 150
	}
	if c.RouteTTL <= 0 {
		c.RouteTTL = 2 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
}

type route struct {
	pool     Pool
	recorded time.Time
}

// Router submits jobs to the dedicated pool first and falls back to the
// serverless pool on failure or timeout. It tracks which pool accepted each
// job id in an in-memory table so later status polls reach the right pool.
// The table is process-local: after a restart, polls default to the
// serverless pool.
type Router struct {
	dedicated  JobBackend
	serverless JobBackend
	cfg        Config
	logger     *zap.Logger

	mu     sync.Mutex
	routes map[string]route
	done   chan struct{}
	once   sync.Once
}

// NewRouter creates a job router and starts its route-eviction janitor.
func NewRouter(dedicated, serverless JobBackend, cfg Config, logger *zap.Logger) (*Router, error) {
	if serverless == nil {
		return nil, fmt.Errorf("serverless backend cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	r := &Router{
		dedicated:  dedicated,
		serverless: serverless,
		cfg:        cfg,
		logger:     logger,
		routes:     make(map[string]route),
		done:       make(chan struct{}),
	}
	go r.janitor()
	return r, nil
}

// Close stops the route-eviction janitor.
func (r *Router) Close() {
	r.once.Do(func() { close(r.done) })
}

// Submit routes a job: dedicated pool first under a bounded timeout, then the
// identical payload to the serverless pool. Both pools refusing the job
// yields ErrBackendUnavailable.
func (r *Router) Submit(ctx context.Context, payload map[string]any) (*Submission, error) {
	var fallbackReason string

	if r.dedicated != nil {
		dedicatedCtx, cancel := context.WithTimeout(ctx, r.cfg.DedicatedTimeout)
		jobID, err := r.dedicated.Submit(dedicatedCtx, payload)
		cancel()
		if err == nil {
			r.record(jobID, PoolDedicated)
			r.logger.Info("Job accepted by dedicated pool", zap.String("job_id", jobID))
			return &Submission{JobID: jobID, Pool: PoolDedicated}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fallbackReason = err.Error()
		r.logger.Warn("Dedicated pool submission failed, falling back to serverless",
			zap.Error(err))
	} else {
		fallbackReason = "no dedicated pool configured"
	}

	serverlessCtx, cancel := context.WithTimeout(ctx, r.cfg.SubmitTimeout)
	defer cancel()
	jobID, err := r.serverless.Submit(serverlessCtx, payload)
	if err != nil {
		return nil, engerrors.NewError(engerrors.CodeBackendUnavailable,
			fmt.Sprintf("dedicated: %s; serverless submission failed", fallbackReason),
			engerrors.ErrBackendUnavailable)
	}
	r.record(jobID, PoolServerless)
	r.logger.Info("Job accepted by serverless pool",
		zap.String("job_id", jobID),
		zap.String("fallback_reason", fallbackReason))
	return &Submission{
		JobID:          jobID,
		Pool:           PoolServerless,
		UsedFallback:   true,
		FallbackReason: fallbackReason,
	}, nil
}

// Poll fetches the status of a job from the pool that accepted it. Unmapped
// job ids (a restarted router, an evicted route) default to the serverless
// pool.
func (r *Router) Poll(ctx context.Context, jobID string) (*JobStatus, error) {
	backend := r.serverless
	if r.lookup(jobID) == PoolDedicated && r.dedicated != nil {
		backend = r.dedicated
	}
	return backend.Poll(ctx, jobID)
}

// AwaitResult polls a job at a fixed interval until it is terminal, the
// attempt budget is exhausted (ErrJobTimeout), or ctx is cancelled.
func (r *Router) AwaitResult(ctx context.Context, jobID string) (any, error) {
	for attempt := 0; attempt < r.cfg.MaxPollAttempts; attempt++ {
		status, err := r.Poll(ctx, jobID)
		if err == nil && status != nil && status.Done {
			if status.Err != "" {
				return nil, fmt.Errorf("job %s failed: %s", jobID, status.Err)
			}
			return status.Output, nil
		}
		if err != nil {
			r.logger.Warn("Job status poll failed",
				zap.String("job_id", jobID),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		}
		if attempt == r.cfg.MaxPollAttempts-1 {
			// No wait after the final poll; exhaustion surfaces immediately.
			break
		}

		select {
		case <-time.After(r.cfg.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, engerrors.NewError(engerrors.CodeJobTimeout,
		fmt.Sprintf("job %s not terminal after %d polls", jobID, r.cfg.MaxPollAttempts),
		engerrors.ErrJobTimeout)
}

func (r *Router) record(jobID string, pool Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[jobID] = route{pool: pool, recorded: time.Now()}
}

func (r *Router) lookup(jobID string) Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.routes[jobID]; ok {
		return entry.pool
	}
	return PoolServerless
}

// janitor evicts routes older than the TTL so abandoned jobs do not grow the
// table without bound.
func (r *Router) janitor() {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.mu.Lock()
			for jobID, entry := range r.routes {
				if now.Sub(entry.recorded) > r.cfg.RouteTTL {
					delete(r.routes, jobID)
				}
			}
			r.mu.Unlock()
		}
	}
}

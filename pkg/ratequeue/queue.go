// Package ratequeue serializes outbound calls per tenant with a minimum
// inter-call delay. Queues for different tenants never block each other.
package ratequeue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Config controls throttling and eviction behavior.
type Config struct {
	// MinDelay is the minimum time between consecutive dispatches for one
	// tenant
	MinDelay time.Duration
	// IdleTTL is how long an empty queue survives before eviction
	IdleTTL time.Duration
	// SweepInterval is how often idle queues are checked for eviction
	SweepInterval time.Duration
}

// DefaultConfig returns the throttle configuration used for hosted API calls.
func DefaultConfig() Config {
	return Config{
		MinDelay:      time.Second,
		IdleTTL:       5 * time.Minute,
		SweepInterval: time.Minute,
	}
}

func (c *Config) applyDefaults() {
	if c.MinDelay <= 0 {
		c.MinDelay = time.Second
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

type job struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
}

type tenantQueue struct {
	mu           sync.Mutex
	cond         *sync.Cond
	jobs         []*job
	lastDispatch time.Time
	lastActive   time.Time
	busy         bool
	closed       bool
}

func newTenantQueue() *tenantQueue {
	q := &tenantQueue{lastActive: time.Now()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Queue is the per-tenant outbound request throttle. It lazily creates one
// FIFO queue per tenant key, each served by its own dispatcher goroutine.
// The queue is an injected service: construct it once, share it, and Close it
// on shutdown. State is process-local; horizontal scale loses cross-process
// rate coordination.
type Queue struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	tenants map[string]*tenantQueue
	closed  bool
	done    chan struct{}
}

// NewQueue creates a per-tenant request queue and starts its idle-eviction
// janitor.
func NewQueue(cfg Config, logger *zap.Logger) *Queue {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		cfg:     cfg,
		logger:  logger,
		tenants: make(map[string]*tenantQueue),
		done:    make(chan struct{}),
	}
	go q.janitor()
	return q
}

// Do enqueues fn for the tenant and blocks until it completed or ctx is
// cancelled before dispatch. Calls for one tenant execute strictly
// sequentially with at least MinDelay between consecutive dispatch times.
func (q *Queue) Do(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	j := &job{ctx: ctx, fn: fn, result: make(chan error, 1)}

	for {
		tq, err := q.queueFor(tenantID)
		if err != nil {
			return err
		}
		tq.mu.Lock()
		if tq.closed {
			// Lost a race against eviction; grab a fresh queue.
			tq.mu.Unlock()
			continue
		}
		tq.jobs = append(tq.jobs, j)
		tq.lastActive = time.Now()
		tq.cond.Signal()
		tq.mu.Unlock()
		break
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		// The dispatcher notices the dead context before executing; an
		// already-started call runs to completion but its result is dropped.
		return ctx.Err()
	}
}

// Len reports the number of live tenant queues. Intended for tests and
// observability.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tenants)
}

// Close stops the janitor and closes every tenant queue. Jobs not yet
// dispatched fail with ErrQueueClosed; in-flight calls finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	tenants := q.tenants
	q.tenants = make(map[string]*tenantQueue)
	q.mu.Unlock()

	for _, tq := range tenants {
		tq.mu.Lock()
		tq.closed = true
		tq.cond.Broadcast()
		tq.mu.Unlock()
	}
}

func (q *Queue) queueFor(tenantID string) (*tenantQueue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, engerrors.ErrQueueClosed
	}
	tq, ok := q.tenants[tenantID]
	if !ok {
		tq = newTenantQueue()
		q.tenants[tenantID] = tq
		go q.dispatch(tenantID, tq)
		q.logger.Debug("Created tenant request queue", zap.String("tenant_id", tenantID))
	}
	return tq, nil
}

// dispatch serves one tenant queue until it is closed or evicted.
func (q *Queue) dispatch(tenantID string, tq *tenantQueue) {
	for {
		tq.mu.Lock()
		for len(tq.jobs) == 0 && !tq.closed {
			tq.cond.Wait()
		}
		if tq.closed {
			remaining := tq.jobs
			tq.jobs = nil
			tq.mu.Unlock()
			for _, j := range remaining {
				j.result <- engerrors.ErrQueueClosed
			}
			return
		}
		j := tq.jobs[0]
		tq.jobs = tq.jobs[1:]
		wait := q.cfg.MinDelay - time.Since(tq.lastDispatch)
		tq.busy = true
		tq.mu.Unlock()

		if j.ctx.Err() != nil {
			j.result <- j.ctx.Err()
			tq.mu.Lock()
			tq.busy = false
			tq.mu.Unlock()
			continue
		}

		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-j.ctx.Done():
				j.result <- j.ctx.Err()
				tq.mu.Lock()
				tq.busy = false
				tq.mu.Unlock()
				continue
			}
		}

		tq.mu.Lock()
		tq.lastDispatch = time.Now()
		tq.mu.Unlock()

		j.result <- j.fn(j.ctx)

		tq.mu.Lock()
		tq.busy = false
		tq.lastActive = time.Now()
		tq.mu.Unlock()
	}
}

// janitor periodically evicts tenant queues that have been idle past the TTL.
// Eviction never interrupts in-flight work: busy or non-empty queues survive.
func (q *Queue) janitor() {
	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.done:
			return
		case now := <-ticker.C:
			q.mu.Lock()
			for tenantID, tq := range q.tenants {
				tq.mu.Lock()
				idle := len(tq.jobs) == 0 && !tq.busy && now.Sub(tq.lastActive) > q.cfg.IdleTTL
				if idle {
					tq.closed = true
					tq.cond.Broadcast()
					delete(q.tenants, tenantID)
					q.logger.Debug("Evicted idle tenant request queue", zap.String("tenant_id", tenantID))
				}
				tq.mu.Unlock()
			}
			q.mu.Unlock()
		}
	}
}

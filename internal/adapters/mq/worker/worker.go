// Package worker runs the integration stage: a pool of goroutines
// draining the ingest queue and applying records to the merged stores.
//
// Records are dispatched by canonical match key, so every record of a
// given match lands on the same worker. That gives the integrator a
// single writer per key without any per-record locking.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime"
	"strconv"
	"sync"

	"github.com/okian/harpastum/internal/domain/model"
	"github.com/okian/harpastum/pkg/logger"
	"github.com/okian/harpastum/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultLaneBuffer = 256
)

// Record is what workers read off the queue.
type Record = model.ProviderRecord

// Integrator applies one resolved record to the merged state.
type Integrator interface {
	Apply(ctx context.Context, r Record) error
}

// Queue defines how the pool receives records.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Record
}

// Pool dispatches records to a fixed set of integration workers.
type Pool struct {
	queue      Queue
	integrator Integrator
	workers    int
	laneBuffer int

	lanes []chan Record
	wg    sync.WaitGroup
	done  chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithWorkers sets the worker count.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLaneBuffer sets the per-worker channel buffer.
func WithLaneBuffer(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.laneBuffer = n
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPool creates a worker pool draining the queue into the integrator.
func NewPool(q Queue, integrator Integrator, opts ...Option) *Pool {
	p := &Pool{
		queue:      q,
		integrator: integrator,
		workers:    runtime.NumCPU(),
		laneBuffer: defaultLaneBuffer,
		done:       make(chan struct{}),
		logger:     logger.Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.lanes = make([]chan Record, p.workers)
	for i := range p.lanes {
		p.lanes[i] = make(chan Record, p.laneBuffer)
	}
	metrics.UpdateWorkerCount(p.workers)
	return p
}

// Start launches the workers and the dispatcher. The pool drains until
// the queue closes or the context is cancelled; Shutdown waits for it.
func (p *Pool) Start(ctx context.Context) {
	for i, lane := range p.lanes {
		p.wg.Add(1)
		go p.run(ctx, strconv.Itoa(i), lane)
	}

	go func() {
		defer close(p.done)
		p.dispatch(ctx)
		for _, lane := range p.lanes {
			close(lane)
		}
		p.wg.Wait()
		metrics.UpdateWorkerCount(0)
	}()
}

// Shutdown waits for the pool to drain. The queue must be closed
// first; otherwise this only returns once ctx expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "pool shutdown timed out")
		return fmt.Errorf("pool shutdown: %w", ctx.Err())
	}
}

// dispatch routes each record to the lane owning its match key.
func (p *Pool) dispatch(ctx context.Context) {
	for r := range p.queue.Dequeue(ctx) {
		lane := p.lanes[p.shard(r)]
		select {
		case lane <- r:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) shard(r Record) int {
	h := fnv.New32a()
	h.Write([]byte(shardKey(r)))
	return int(h.Sum32() % uint32(p.workers))
}

// shardKey is the record's canonical match key. Stat lines shard with
// their match so a match and its stats never race across workers.
func shardKey(r Record) string {
	switch {
	case r.Match != nil:
		return model.MatchKey(r.Match.Date, r.Match.Home, r.Match.Away)
	case r.Stat != nil:
		return model.MatchKey(r.Stat.Date, r.Stat.Home, r.Stat.Away)
	default:
		return ""
	}
}

func (p *Pool) run(ctx context.Context, name string, lane <-chan Record) {
	defer p.wg.Done()
	log := p.logger.Named(name)
	for r := range lane {
		if err := p.integrator.Apply(ctx, r); err != nil {
			metrics.RecordRecordDropped("apply_error")
			log.Error(ctx, "record integration failed",
				logger.String("provider", r.Provider),
				logger.String("key", shardKey(r)),
				logger.Error(err),
			)
		}
	}
}

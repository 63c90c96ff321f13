// Package pool owns the fixed set of media workers and the placement of
// routers onto them.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mediabridge/sfu/internal/domain"
	"github.com/mediabridge/sfu/internal/engine"
)

// Options configures pool bootstrap.
type Options struct {
	Size        int
	RTCMinPort  uint16
	RTCMaxPort  uint16
	AnnouncedIP string
}

// Pool is a fixed set of workers created synchronously at startup. A partial
// pool is not acceptable: allocation assumes every slot is populated, so any
// creation failure fails the whole startup.
type Pool struct {
	mu      sync.Mutex
	workers []engine.Worker
	routers []int
}

// New creates opts.Size workers, failing fast on the first error. Workers
// already created before the failure are closed.
func New(ctx context.Context, eng engine.Engine, opts Options) (*Pool, error) {
	if opts.Size < 1 {
		return nil, fmt.Errorf("%w: pool size %d", domain.ErrUnavailable, opts.Size)
	}
	p := &Pool{
		workers: make([]engine.Worker, 0, opts.Size),
		routers: make([]int, opts.Size),
	}
	for i := 0; i < opts.Size; i++ {
		w, err := eng.CreateWorker(ctx, engine.WorkerOptions{
			Index:       i,
			RTCMinPort:  opts.RTCMinPort,
			RTCMaxPort:  opts.RTCMaxPort,
			AnnouncedIP: opts.AnnouncedIP,
		})
		if err != nil {
			for _, created := range p.workers {
				created.Close()
			}
			return nil, fmt.Errorf("create worker %d: %w", i, err)
		}
		p.workers = append(p.workers, w)
		log.Info().Str("module", "pool").Int("index", i).Str("worker", string(w.ID())).Msg("worker created")
	}
	return p, nil
}

// Size returns the number of pool slots.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Workers returns the live worker set, in pool order.
func (p *Pool) Workers() []engine.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]engine.Worker, len(p.workers))
	copy(out, p.workers)
	return out
}

// RouterCounts returns the per-slot router load, in pool order.
func (p *Pool) RouterCounts() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.routers))
	copy(out, p.routers)
	return out
}

// Allocate selects a worker via the policy and accounts one router to it in
// the same critical section, so concurrent allocations observe each other's
// load and the distribution converges.
func (p *Pool) Allocate(policy Policy) (engine.Worker, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.workers) == 0 {
		return nil, -1, domain.ErrUnavailable
	}
	idx, err := policy.Select(p.routers)
	if err != nil {
		return nil, -1, fmt.Errorf("%w: %v", domain.ErrAllocation, err)
	}
	p.routers[idx]++
	return p.workers[idx], idx, nil
}

// Release returns one router's worth of load to the slot. Safe to call after
// a failed router creation or a room close.
func (p *Pool) Release(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx >= 0 && idx < len(p.routers) && p.routers[idx] > 0 {
		p.routers[idx]--
	}
}

// Close closes every worker. Called only at full service shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	workers := p.workers
	p.workers = nil
	p.mu.Unlock()
	for _, w := range workers {
		w.Close()
	}
}

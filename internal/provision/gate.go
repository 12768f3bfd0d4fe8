package provision

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the default number of gated units in flight.
const DefaultConcurrency = 8

// Gate bounds how many chunk and relationship units talk to the platform at
// once. One Gate is shared by every gated phase of a run.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64

	// mu orders counter updates with their onChange reports.
	mu       sync.Mutex
	onChange func(inFlight int64)
}

// NewGate creates a gate admitting at most capacity holders.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		capacity = DefaultConcurrency
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Acquire blocks until a slot is free or ctx is done.
// The caller must call Release once Acquire returned nil.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.update(1)
	return nil
}

// Release frees a slot.
func (g *Gate) Release() {
	g.update(-1)
	g.sem.Release(1)
}

func (g *Gate) update(delta int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.inFlight.Add(delta)
	if g.onChange != nil {
		g.onChange(n)
	}
}

// InFlight returns the number of current holders.
func (g *Gate) InFlight() int64 {
	return g.inFlight.Load()
}

// Capacity returns the maximum number of holders.
func (g *Gate) Capacity() int64 {
	return g.capacity
}

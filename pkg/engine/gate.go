package engine

import (
	"context"
	"sync"
)

// Gate is a counting admission gate. At most Size holders exist at any time.
type Gate struct {
	slots chan struct{}

	mu      sync.Mutex
	current int
	peak    int
}

// NewGate creates a gate with n slots (minimum 1).
func NewGate(n int) *Gate {
	return &Gate{slots: make(chan struct{}, max(1, n))}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	g.mu.Lock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
	g.mu.Unlock()
	gateInflight.Inc()
	return nil
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.mu.Lock()
	if g.current > 0 {
		g.current--
	}
	g.mu.Unlock()
	gateInflight.Dec()
	<-g.slots
}

// Size returns the number of slots.
func (g *Gate) Size() int {
	return cap(g.slots)
}

// Inflight returns the number of current holders.
func (g *Gate) Inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Peak returns the highest number of simultaneous holders observed.
func (g *Gate) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

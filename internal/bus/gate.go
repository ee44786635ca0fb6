package bus

import (
	"context"
	"sync"
	"time"
)

// Gate is the uploading on/off switch workers park on. Waiters are released
// by a channel broadcast rather than a sleep loop, but WaitOpen still
// returns after the configured timeout so a parked worker re-checks its stop
// conditions at the usual cadence.
type Gate struct {
	mu     sync.Mutex
	open   bool
	opened chan struct{}
}

// NewGate returns a gate in the given initial position.
func NewGate(open bool) *Gate {
	g := &Gate{open: open, opened: make(chan struct{})}
	if open {
		close(g.opened)
	}
	return g
}

// Open releases every waiter.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return
	}
	g.open = true
	close(g.opened)
}

// Close parks subsequent waiters.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return
	}
	g.open = false
	g.opened = make(chan struct{})
}

// IsOpen reports the current position.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// WaitOpen blocks until the gate is open, the timeout lapses, or ctx is
// cancelled. Returns true only when the gate is open.
func (g *Gate) WaitOpen(ctx context.Context, timeout time.Duration) bool {
	g.mu.Lock()
	opened := g.opened
	g.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-opened:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shuttle/internal/bus"
	"shuttle/internal/config"
	"shuttle/internal/manifest"
	"shuttle/internal/uploader"
)

// ErrCapacityExceeded is returned by AddWorker at the worker ceiling.
var ErrCapacityExceeded = errors.New("worker limit reached")

// SetupFunc prepares a worker session before it starts consuming envelopes.
// Failures are retried up to the configured attempt cap.
type SetupFunc func(ctx context.Context, workerID int) error

// Deps carries everything a pool's workers share.
type Deps struct {
	Queue     *bus.Queue
	Events    *bus.Events
	Gate      *bus.Gate
	Transport uploader.Transport
	Shaper    manifest.PayloadShaper
	Setup     SetupFunc
	Logger    *slog.Logger
}

type unit struct {
	id       int
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// Pool manages the worker fleet: monotonic ids, the capacity ceiling, and
// retire-highest-first removal. Ids reset to the base only when the pool is
// fully drained.
type Pool struct {
	max           int
	setupAttempts int
	pollTimeout   time.Duration
	maxUploadTime time.Duration

	queue     *bus.Queue
	events    *bus.Events
	gate      *bus.Gate
	transport uploader.Transport
	shaper    manifest.PayloadShaper
	setup     SetupFunc
	logger    *slog.Logger

	mu      sync.Mutex
	workers map[int]*unit
	lastID  int
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewPool builds a pool from config and shared dependencies.
func NewPool(cfg *config.Config, deps Deps) *Pool {
	setup := deps.Setup
	if setup == nil {
		setup = func(context.Context, int) error { return nil }
	}
	return &Pool{
		max:           cfg.Workers.Max,
		setupAttempts: cfg.Workers.SetupAttempts,
		pollTimeout:   cfg.PollTimeout(),
		maxUploadTime: cfg.MaxUploadTime(),
		queue:         deps.Queue,
		events:        deps.Events,
		gate:          deps.Gate,
		transport:     deps.Transport,
		shaper:        deps.Shaper,
		setup:         setup,
		logger:        deps.Logger,
		workers:       make(map[int]*unit),
		baseCtx:       context.Background(),
	}
}

// Start binds the pool to its parent context. Must be called before the
// first AddWorker.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseCtx = ctx
}

// AddWorker spins up one worker. At the ceiling it publishes a single
// capacity-exceeded report and adds nothing.
func (p *Pool) AddWorker() error {
	p.mu.Lock()
	if len(p.workers) >= p.max {
		p.mu.Unlock()
		p.events.Publish(bus.Event{Kind: bus.KindCapacityExceeded})
		return ErrCapacityExceeded
	}
	p.lastID++
	id := p.lastID
	ctx, cancel := context.WithCancel(p.baseCtx)
	w := &unit{id: id, cancel: cancel, done: make(chan struct{})}
	p.workers[id] = w
	p.wg.Add(1)
	p.mu.Unlock()

	go p.runLoop(ctx, w)
	return nil
}

// StopLast retires the highest-id worker that is not already stopping.
// Returns false when no such worker exists. The worker drains its current
// envelope before exiting.
func (p *Pool) StopLast() bool {
	p.mu.Lock()
	var target *unit
	for _, w := range p.workers {
		if w.stopping {
			continue
		}
		if target == nil || w.id > target.id {
			target = w
		}
	}
	if target != nil {
		target.stopping = true
	}
	p.mu.Unlock()

	if target == nil {
		return false
	}
	target.cancel()
	return true
}

// StopAll retires every worker and waits for them to exit.
func (p *Pool) StopAll() {
	p.mu.Lock()
	for _, w := range p.workers {
		w.stopping = true
		w.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Count returns the number of workers, including any mid-shutdown.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Max returns the worker ceiling.
func (p *Pool) Max() int {
	return p.max
}

func (p *Pool) forget(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.workers, id)
	// Reuse the highest retired id; a drained pool starts over from the base.
	highest := 0
	for _, w := range p.workers {
		if w.id > highest {
			highest = w.id
		}
	}
	p.lastID = highest
}

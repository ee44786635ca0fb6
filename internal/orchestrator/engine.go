package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"shuttle/internal/bus"
	"shuttle/internal/config"
	"shuttle/internal/distributor"
	"shuttle/internal/ledger"
	"shuttle/internal/logging"
	"shuttle/internal/manifest"
	"shuttle/internal/observer"
	"shuttle/internal/status"
	"shuttle/internal/token"
	"shuttle/internal/uploader"
	"shuttle/internal/worker"
)

// ErrNotRunning is returned by controls invoked on a stopped engine.
var ErrNotRunning = errors.New("engine not running")

// Deps are the externally owned pieces the engine coordinates.
type Deps struct {
	Ledger    *ledger.Ledger
	Tokens    *token.Source
	Transport uploader.Transport
	Shaper    manifest.PayloadShaper
	Registry  *observer.Registry
	Setup     worker.SetupFunc
	Logger    *slog.Logger
}

// Engine wires the distributor, worker pool, status aggregator, and
// snapshot broadcaster into one lifecycle. Uploading starts gated off;
// a control command opens the gate.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	ledger     *ledger.Ledger
	tokens     *token.Source
	queue      *bus.Queue
	events     *bus.Events
	gate       *bus.Gate
	pool       *worker.Pool
	distrib    *distributor.Distributor
	aggregator *status.Aggregator
	broadcast  *observer.Broadcaster

	mu         sync.Mutex
	running    bool
	svcCancel  context.CancelFunc
	workCancel context.CancelFunc
	workWG     sync.WaitGroup
	svcWG      sync.WaitGroup
}

// New assembles an engine from config and dependencies.
func New(cfg *config.Config, deps Deps) *Engine {
	logger := deps.Logger
	queue := bus.NewQueue(cfg.Distributor.QueueSoftCap)
	events := bus.NewEvents()
	gate := bus.NewGate(false)

	aggregator := status.NewAggregator(deps.Ledger, queue, gate, events, cfg.Workers.Max, logger)

	e := &Engine{
		cfg:        cfg,
		logger:     logging.WithComponent(logger, "engine"),
		ledger:     deps.Ledger,
		tokens:     deps.Tokens,
		queue:      queue,
		events:     events,
		gate:       gate,
		aggregator: aggregator,
	}

	e.pool = worker.NewPool(cfg, worker.Deps{
		Queue:     queue,
		Events:    events,
		Gate:      gate,
		Transport: deps.Transport,
		Shaper:    deps.Shaper,
		Setup:     deps.Setup,
		Logger:    logger,
	})
	e.distrib = distributor.New(cfg, deps.Ledger, deps.Tokens, queue, gate, events, logger)
	e.broadcast = observer.NewBroadcaster(cfg, deps.Registry, aggregator.Snapshot,
		aggregator.SetActiveObservers, logger)

	return e
}

// Start launches the engine goroutines and the initial worker complement.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("engine already running")
	}

	svcCtx, svcCancel := context.WithCancel(ctx)
	workCtx, workCancel := context.WithCancel(svcCtx)
	e.svcCancel = svcCancel
	e.workCancel = workCancel

	e.svcWG.Add(1)
	go func() {
		defer e.svcWG.Done()
		e.aggregator.Run(svcCtx)
	}()
	e.svcWG.Add(1)
	go func() {
		defer e.svcWG.Done()
		e.broadcast.Run(svcCtx)
	}()

	e.workWG.Add(1)
	go func() {
		defer e.workWG.Done()
		e.distrib.Run(workCtx)
	}()

	e.pool.Start(workCtx)
	for i := 0; i < e.cfg.Workers.Initial; i++ {
		if err := e.pool.AddWorker(); err != nil {
			e.logger.Warn("initial worker not added", logging.Error(err))
		}
	}

	e.running = true
	e.logger.Info("engine started",
		logging.Int("initial_workers", e.cfg.Workers.Initial),
		logging.Int("max_workers", e.cfg.Workers.Max))
	return nil
}

// Stop winds the engine down: producers first, then the aggregator drains
// what remains, then outstanding claims are abandoned so the final snapshot
// is honest.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	workCancel := e.workCancel
	svcCancel := e.svcCancel
	e.mu.Unlock()

	workCancel()
	e.pool.StopAll()
	e.workWG.Wait()

	svcCancel()
	e.svcWG.Wait()
	e.aggregator.Drain(context.Background())

	if abandoned := e.ledger.AbandonClaims(); abandoned > 0 {
		e.logger.Warn("claims abandoned at shutdown", logging.Int("count", abandoned))
	}
	e.logger.Info("engine stopped")
}

// Running reports whether Start has succeeded and Stop has not yet run.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Snapshot returns the aggregator's current view.
func (e *Engine) Snapshot() status.Snapshot {
	return e.aggregator.Snapshot()
}

// StartUploading opens the gate; parked workers resume within one poll.
func (e *Engine) StartUploading() error {
	if !e.Running() {
		return ErrNotRunning
	}
	e.gate.Open()
	e.logger.Info("uploading started")
	return nil
}

// StopUploading closes the gate. Uploads already in flight finish.
func (e *Engine) StopUploading() error {
	if !e.Running() {
		return ErrNotRunning
	}
	e.gate.Close()
	e.logger.Info("uploading paused")
	return nil
}

// AddWorkers adds up to n workers, stopping at the ceiling. Returns how
// many were added.
func (e *Engine) AddWorkers(n int) (int, error) {
	if !e.Running() {
		return 0, ErrNotRunning
	}
	added := 0
	for i := 0; i < n; i++ {
		if err := e.pool.AddWorker(); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// StopWorkers retires up to n workers, highest id first. Returns how many
// were told to stop.
func (e *Engine) StopWorkers(n int) (int, error) {
	if !e.Running() {
		return 0, ErrNotRunning
	}
	stopped := 0
	for i := 0; i < n; i++ {
		if !e.pool.StopLast() {
			break
		}
		stopped++
	}
	return stopped, nil
}

// WorkerCount returns the current pool size.
func (e *Engine) WorkerCount() int {
	return e.pool.Count()
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"shuttle/internal/config"
	"shuttle/internal/logging"
	"shuttle/internal/observer"
	"shuttle/internal/orchestrator"
	"shuttle/internal/records"
)

// Daemon coordinates the upload engine and control API and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *records.Store
	engine   *orchestrator.Engine
	registry *observer.Registry
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	stopping chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	RecordDBPath string
	LockFilePath string
	Workers      int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *records.Store, engine *orchestrator.Engine, registry *observer.Registry, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || engine == nil || registry == nil {
		return nil, errors.New("daemon requires config, store, engine, and registry")
	}

	lockPath := cfg.LockFilePath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		store:    store,
		engine:   engine,
		registry: registry,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		stopping: make(chan struct{}),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the engine and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shuttle daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.engine.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		return fmt.Errorf("start engine: %w", err)
	}
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.engine.Stop()
			_ = d.lock.Unlock()
			d.cancel()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("shuttle daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop winds down the API server and engine and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.running.Store(false)

	if d.api != nil {
		d.api.stop()
	}
	d.engine.Stop()
	if d.cancel != nil {
		d.cancel()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock", logging.Error(err))
	}
	d.logger.Info("shuttle daemon stopped")
}

// RequestShutdown asks the daemon's owner to stop it. Used by the API's
// server-stop command.
func (d *Daemon) RequestShutdown() {
	select {
	case <-d.stopping:
	default:
		close(d.stopping)
	}
}

// ShutdownRequested exposes the channel the owner waits on.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.stopping
}

// Status reports runtime information.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		RecordDBPath: d.store.Path(),
		LockFilePath: d.lockPath,
		Workers:      d.engine.WorkerCount(),
	}
}

// APIAddr returns the bound control API address, empty until Start.
func (d *Daemon) APIAddr() string {
	return d.api.Addr()
}

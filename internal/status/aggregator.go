package status

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"shuttle/internal/bus"
	"shuttle/internal/ledger"
	"shuttle/internal/logging"
	"shuttle/internal/metrics"
	"shuttle/internal/version"
)

// Worker states as surfaced in snapshots.
const (
	WorkerStateSettingUp = "setting_up"
	WorkerStateReady     = "ready"
)

type workerState struct {
	state   string
	uploads int
	setupMS int64
}

// Aggregator is the sole consumer of the event bus and the sole marker of
// ledger jobs. It folds every event into the live snapshot.
type Aggregator struct {
	ledger     *ledger.Ledger
	queue      *bus.Queue
	gate       *bus.Gate
	events     *bus.Events
	maxWorkers int
	logger     *slog.Logger

	mu                 sync.Mutex
	workers            map[int]*workerState
	timings            Timings
	sessionUploads     int
	capacityRejections int
	backlogExhausted   bool
	observers          int
}

// NewAggregator builds an aggregator over the shared engine state.
func NewAggregator(ld *ledger.Ledger, queue *bus.Queue, gate *bus.Gate, events *bus.Events, maxWorkers int, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		ledger:     ld,
		queue:      queue,
		gate:       gate,
		events:     events,
		maxWorkers: maxWorkers,
		logger:     logging.WithComponent(logger, "status"),
		workers:    map[int]*workerState{},
	}
}

// Run consumes events until ctx is cancelled. Marks are applied here and
// nowhere else, so each envelope's single terminal event moves its job
// exactly once.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case evt := <-a.events.Chan():
			a.apply(ctx, evt)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Aggregator) apply(ctx context.Context, evt bus.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch evt.Kind {
	case bus.KindWorkerStarting:
		a.workers[evt.WorkerID] = &workerState{state: WorkerStateSettingUp}

	case bus.KindWorkerReady:
		a.workers[evt.WorkerID] = &workerState{
			state:   WorkerStateReady,
			setupMS: evt.Duration.Milliseconds(),
		}
		a.timings.LastSetupMS = evt.Duration.Milliseconds()
		a.timings.AvgSetup.Add(evt.Duration)
		metrics.ActiveWorkers.Set(float64(len(a.workers)))

	case bus.KindWorkerSetupFailed:
		if _, ok := a.workers[evt.WorkerID]; !ok {
			a.workers[evt.WorkerID] = &workerState{state: WorkerStateSettingUp}
		}

	case bus.KindWorkerSetupAbandoned, bus.KindWorkerStopped:
		delete(a.workers, evt.WorkerID)
		metrics.ActiveWorkers.Set(float64(len(a.workers)))

	case bus.KindCapacityExceeded:
		a.capacityRejections++

	case bus.KindUploadCompleted:
		if evt.Record == nil {
			a.logger.Error("completed event without record", logging.JobID(evt.AssetID))
			return
		}
		if err := a.ledger.MarkUploaded(ctx, evt.AssetID, *evt.Record); err != nil {
			a.logger.Error("mark uploaded failed", logging.JobID(evt.AssetID), logging.Error(err))
			return
		}
		a.sessionUploads++
		a.timings.LastUploadMS = evt.Duration.Milliseconds()
		a.timings.AvgUpload.Add(evt.Duration)
		if w, ok := a.workers[evt.WorkerID]; ok {
			w.uploads++
		}
		metrics.AssetsUploaded.Inc()
		metrics.UploadDuration.Observe(evt.Duration.Seconds())

	case bus.KindUploadTimedOut, bus.KindUploadErrored:
		if err := a.ledger.MarkFailed(evt.AssetID); err != nil {
			a.logger.Error("mark failed failed", logging.JobID(evt.AssetID), logging.Error(err))
			return
		}
		metrics.UploadFailures.Inc()

	case bus.KindBacklogExhausted:
		a.backlogExhausted = true
		a.logger.Info("backlog exhausted")
	}

	metrics.QueueDepth.Set(float64(a.queue.Len()))
}

// Drain applies any events still buffered. Called after every producer has
// stopped so the final snapshot accounts for the whole run.
func (a *Aggregator) Drain(ctx context.Context) {
	for {
		select {
		case evt := <-a.events.Chan():
			a.apply(ctx, evt)
		default:
			return
		}
	}
}

// SetActiveObservers records the observer count shown in snapshots.
func (a *Aggregator) SetActiveObservers(n int) {
	a.mu.Lock()
	a.observers = n
	a.mu.Unlock()
}

// Snapshot assembles the current state for observers.
func (a *Aggregator) Snapshot() Snapshot {
	counts := a.ledger.Counts()

	a.mu.Lock()
	defer a.mu.Unlock()

	workers := make([]WorkerInfo, 0, len(a.workers))
	for id, w := range a.workers {
		workers = append(workers, WorkerInfo{
			ID:      id,
			State:   w.state,
			Uploads: w.uploads,
			SetupMS: w.setupMS,
		})
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })

	return Snapshot{
		Assets: AssetTotals{
			Total:          counts.Total,
			Uploaded:       counts.Uploaded,
			Remaining:      counts.Total - counts.Uploaded,
			FailedAttempts: counts.FailedAttempts,
			SessionUploads: a.sessionUploads,
		},
		Workers: workers,
		Engine: EngineInfo{
			Uploading:          a.gate.IsOpen(),
			BacklogExhausted:   a.backlogExhausted,
			QueueDepth:         a.queue.Len(),
			MaxWorkers:         a.maxWorkers,
			CapacityRejections: a.capacityRejections,
			AppVersion:         version.Version,
			APIVersion:         version.APIVersion,
		},
		ActiveObservers: a.observers,
		Timings:         a.timings,
	}
}

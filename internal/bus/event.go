package bus

import (
	"time"

	"shuttle/internal/records"
)

// Kind discriminates worker and engine events.
type Kind string

const (
	// Worker lifecycle.
	KindWorkerStarting       Kind = "worker_starting"
	KindWorkerReady          Kind = "worker_ready"
	KindWorkerSetupFailed    Kind = "worker_setup_failed"
	KindWorkerSetupAbandoned Kind = "worker_setup_abandoned"
	KindWorkerStopped        Kind = "worker_stopped"
	KindCapacityExceeded     Kind = "capacity_exceeded"

	// Upload results. Exactly one of these is published per consumed
	// envelope.
	KindUploadCompleted Kind = "upload_completed"
	KindUploadTimedOut  Kind = "upload_timed_out"
	KindUploadErrored   Kind = "upload_errored"

	// Distribution.
	KindBacklogExhausted Kind = "backlog_exhausted"
)

// Event is a single occurrence flowing from workers and the distributor to
// the status aggregator.
type Event struct {
	Kind     Kind
	WorkerID int
	AssetID  int
	Duration time.Duration
	// Record carries upload proof on KindUploadCompleted.
	Record *records.Record
	// TokenExpired marks an errored result where the stale token was caught
	// before any upload attempt.
	TokenExpired bool
	Err          string
}

// Events is the worker-to-aggregator event bus.
type Events struct {
	ch chan Event
}

// NewEvents returns a bus buffered for the handful of producers the engine
// runs. Publishing blocks once the buffer fills; the aggregator drains
// continuously.
func NewEvents() *Events {
	return &Events{ch: make(chan Event, 256)}
}

// Publish places an event on the bus.
func (e *Events) Publish(evt Event) {
	e.ch <- evt
}

// Chan exposes the receive side for the aggregator.
func (e *Events) Chan() <-chan Event {
	return e.ch
}

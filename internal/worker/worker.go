package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shuttle/internal/bus"
	"shuttle/internal/logging"
	"shuttle/internal/uploader"
)

// runLoop is one worker's life: set up, then poll envelopes until stopped.
func (p *Pool) runLoop(ctx context.Context, w *unit) {
	defer p.wg.Done()
	defer close(w.done)

	logger := logging.WithComponent(p.logger, "worker").With(logging.WorkerID(w.id))

	p.events.Publish(bus.Event{Kind: bus.KindWorkerStarting, WorkerID: w.id})
	ready := p.setupWorker(ctx, w.id, logger)
	for ready {
		if ctx.Err() != nil {
			break
		}
		if !p.gate.WaitOpen(ctx, p.pollTimeout) {
			continue
		}
		env, ok := p.queue.Pop(ctx, p.pollTimeout)
		if !ok {
			continue
		}
		p.process(ctx, w.id, env, logger)
	}

	// Leave the pool before announcing the stop so observers never see a
	// stopped worker still counted.
	p.forget(w.id)
	if ready || ctx.Err() != nil {
		p.events.Publish(bus.Event{Kind: bus.KindWorkerStopped, WorkerID: w.id})
		logger.Info("worker stopped")
	}
}

// setupWorker prepares the worker session, retrying up to the configured
// attempt cap. Returns false when setup was abandoned or the worker is
// already stopping.
func (p *Pool) setupWorker(ctx context.Context, id int, logger *slog.Logger) bool {
	start := time.Now()
	for attempt := 1; attempt <= p.setupAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		err := p.setup(ctx, id)
		if err == nil {
			duration := time.Since(start)
			p.events.Publish(bus.Event{Kind: bus.KindWorkerReady, WorkerID: id, Duration: duration})
			logger.Info("worker ready", logging.Duration(logging.FieldDuration, duration))
			return true
		}
		p.events.Publish(bus.Event{Kind: bus.KindWorkerSetupFailed, WorkerID: id, Err: err.Error()})
		logger.Warn("worker setup failed",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Error(err))
	}

	p.events.Publish(bus.Event{Kind: bus.KindWorkerSetupAbandoned, WorkerID: id})
	logger.Error("worker setup abandoned", logging.Int(logging.FieldAttempt, p.setupAttempts))
	return false
}

// process performs one upload attempt and publishes exactly one terminal
// result event for the envelope.
func (p *Pool) process(ctx context.Context, workerID int, env bus.Envelope, logger *slog.Logger) {
	assetID := env.Job.Asset.ID

	// A stale token would be rejected downstream anyway; catch it here so
	// the job goes straight back to pending without a wasted attempt.
	if env.Token.Expired(time.Now()) {
		p.events.Publish(bus.Event{
			Kind:         bus.KindUploadErrored,
			WorkerID:     workerID,
			AssetID:      assetID,
			TokenExpired: true,
			Err:          "authorization token expired before upload",
		})
		logger.Warn("token expired, requeueing job", logging.JobID(assetID))
		return
	}

	shaped, err := p.shaper.Shape(env.Job.Asset)
	if err != nil {
		p.events.Publish(bus.Event{
			Kind:     bus.KindUploadErrored,
			WorkerID: workerID,
			AssetID:  assetID,
			Err:      err.Error(),
		})
		logger.Error("payload shaping failed", logging.JobID(assetID), logging.Error(err))
		return
	}

	// The attempt runs to its own deadline regardless of worker stop; stop is
	// observed between envelopes, never mid-upload.
	uploadCtx, cancel := context.WithTimeout(context.Background(), p.maxUploadTime)
	result, err := p.transport.Upload(uploadCtx, shaped, env.Token)
	cancel()

	switch {
	case err == nil && result.Record != nil:
		p.events.Publish(bus.Event{
			Kind:     bus.KindUploadCompleted,
			WorkerID: workerID,
			AssetID:  assetID,
			Duration: result.Duration,
			Record:   result.Record,
		})
		logger.Info("upload completed",
			logging.JobID(assetID),
			logging.Duration(logging.FieldDuration, result.Duration))
	case errors.Is(err, uploader.ErrTimeout):
		p.events.Publish(bus.Event{
			Kind:     bus.KindUploadTimedOut,
			WorkerID: workerID,
			AssetID:  assetID,
			Duration: result.Duration,
		})
		logger.Warn("upload timed out", logging.JobID(assetID))
	default:
		message := "upload returned no record"
		if err != nil {
			message = err.Error()
		}
		p.events.Publish(bus.Event{
			Kind:     bus.KindUploadErrored,
			WorkerID: workerID,
			AssetID:  assetID,
			Duration: result.Duration,
			Err:      message,
		})
		logger.Warn("upload failed", logging.JobID(assetID), logging.String("error", message))
	}
}

// Package distributor feeds claimed jobs into the envelope queue, pacing
// pushes so workers always see a bounded backlog of fresh-token work.
package distributor

import (
	"context"
	"log/slog"
	"time"

	"shuttle/internal/bus"
	"shuttle/internal/config"
	"shuttle/internal/ledger"
	"shuttle/internal/logging"
	"shuttle/internal/token"
)

// Distributor is the only claimer of ledger jobs. Its loop ends once and
// for all when the backlog is exhausted; requeued failures before that point
// are picked up on later passes.
type Distributor struct {
	ledger *ledger.Ledger
	tokens *token.Source
	queue  *bus.Queue
	gate   *bus.Gate
	events *bus.Events
	logger *slog.Logger

	cadence  time.Duration
	idleWait time.Duration
}

// New builds a distributor over the shared ledger, token source, and queue.
func New(cfg *config.Config, ld *ledger.Ledger, tokens *token.Source, queue *bus.Queue, gate *bus.Gate, events *bus.Events, logger *slog.Logger) *Distributor {
	return &Distributor{
		ledger:   ld,
		tokens:   tokens,
		queue:    queue,
		gate:     gate,
		events:   events,
		logger:   logging.WithComponent(logger, "distributor"),
		cadence:  cfg.DistributorCadence(),
		idleWait: cfg.DistributorIdleWait(),
	}
}

// Run drives distribution until the ledger has no pending jobs left or ctx
// is cancelled. On exhaustion it publishes a single backlog-exhausted event
// and returns; distribution never resumes.
func (d *Distributor) Run(ctx context.Context) {
	d.logger.Info("distribution started",
		logging.Int("soft_cap", d.queue.SoftCap()))

	for {
		if ctx.Err() != nil {
			d.logger.Info("distribution cancelled")
			return
		}

		// A closed gate pauses claiming too, so jobs are not stamped with
		// tokens that would go stale while uploading is off.
		if !d.gate.WaitOpen(ctx, d.idleWait) {
			continue
		}

		if d.queue.Full() {
			// Workers are saturated; ease off so their tokens stay fresh.
			if !sleepCtx(ctx, d.idleWait) {
				return
			}
			continue
		}

		job, ok := d.ledger.ClaimNext()
		if !ok {
			d.events.Publish(bus.Event{Kind: bus.KindBacklogExhausted})
			d.logger.Info("backlog exhausted, distribution over")
			return
		}

		env := bus.Envelope{Job: job, Token: d.tokens.Current()}
		if err := d.queue.Push(env); err != nil {
			// Only reachable if something besides this loop feeds the queue.
			// Route the claim back through the aggregator like any failure.
			d.logger.Error("queue rejected envelope", logging.JobID(job.Asset.ID), logging.Error(err))
			d.events.Publish(bus.Event{Kind: bus.KindUploadErrored, AssetID: job.Asset.ID, Err: err.Error()})
			continue
		}
		d.logger.Debug("job distributed", logging.JobID(job.Asset.ID))

		if !sleepCtx(ctx, d.cadence) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

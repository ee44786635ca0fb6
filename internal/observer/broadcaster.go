package observer

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"shuttle/internal/config"
	"shuttle/internal/logging"
	"shuttle/internal/metrics"
	"shuttle/internal/status"
)

// SnapshotFunc supplies the current snapshot for delivery.
type SnapshotFunc func() status.Snapshot

// Broadcaster pushes snapshots to every subscribed observer on a fixed
// cadence. Deliveries are bounded by a permit pool; a push that does not
// answer 201 unsubscribes its observer for good.
type Broadcaster struct {
	registry *Registry
	snapshot SnapshotFunc
	observed func(int)
	logger   *slog.Logger

	interval time.Duration
	permits  chan struct{}
	client   *http.Client
	wg       sync.WaitGroup
}

// NewBroadcaster builds a broadcaster. observed, when non-nil, receives the
// subscriber count each cycle so snapshots can report it.
func NewBroadcaster(cfg *config.Config, registry *Registry, snapshot SnapshotFunc, observed func(int), logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		snapshot: snapshot,
		observed: observed,
		logger:   logging.WithComponent(logger, "broadcast"),
		interval: cfg.BroadcastInterval(),
		permits:  make(chan struct{}, cfg.Broadcast.MaxInflight),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Run broadcasts until ctx is cancelled, then delivers one final snapshot
// and waits for every in-flight push to land.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.push(ctx)
		case <-ctx.Done():
			// Observers get a parting snapshot so their last view reflects
			// the shutdown, not a stale mid-run state.
			b.push(context.Background())
			b.wg.Wait()
			b.logger.Info("broadcast stopped")
			return
		}
	}
}

func (b *Broadcaster) push(ctx context.Context) {
	subscribers := b.registry.Subscribers()
	if b.observed != nil {
		b.observed(b.registry.Count())
	}
	if len(subscribers) == 0 {
		return
	}

	payload, err := status.EncodeSnapshot(b.snapshot())
	if err != nil {
		b.logger.Error("encode snapshot", logging.Error(err))
		return
	}

	for _, session := range subscribers {
		select {
		case b.permits <- struct{}{}:
		case <-ctx.Done():
			return
		}
		b.wg.Add(1)
		go func(session Session) {
			defer b.wg.Done()
			defer func() { <-b.permits }()
			b.deliver(session, payload)
		}(session)
	}
}

func (b *Broadcaster) deliver(session Session, payload []byte) {
	resp, err := b.client.Post(session.CallbackURL, "application/json", bytes.NewReader(payload))
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusCreated {
			return
		}
	}

	// One failed delivery is enough; the observer re-subscribes if it comes
	// back.
	b.registry.Unsubscribe(session.Key)
	metrics.BroadcastFailures.Inc()
	attrs := []logging.Attr{logging.String(logging.FieldSession, session.ClientName)}
	if err != nil {
		attrs = append(attrs, logging.Error(err))
	} else {
		attrs = append(attrs, logging.Int("status", resp.StatusCode))
	}
	b.logger.Warn("observer delivery failed, unsubscribed", logging.Args(attrs...)...)
}

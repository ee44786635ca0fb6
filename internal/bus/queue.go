package bus

import (
	"context"
	"errors"
	"time"

	"shuttle/internal/ledger"
	"shuttle/internal/token"
)

// Envelope pairs a claimed job with the token that authorizes its upload.
type Envelope struct {
	Job   ledger.Job
	Token token.Token
}

// ErrQueueFull is returned when a push lands on a queue at hard capacity.
// The distributor checks Full before pushing, so this surfaces only on
// misuse.
var ErrQueueFull = errors.New("job queue full")

// Queue carries envelopes from the distributor to workers. The soft cap is
// the backlog level at which the distributor stops feeding; the underlying
// buffer holds twice that so a push after a passed Full check cannot block.
type Queue struct {
	softCap int
	ch      chan Envelope
}

// NewQueue returns a queue with the given soft cap.
func NewQueue(softCap int) *Queue {
	if softCap <= 0 {
		softCap = 1
	}
	return &Queue{softCap: softCap, ch: make(chan Envelope, softCap*2)}
}

// SoftCap returns the backlog threshold.
func (q *Queue) SoftCap() int {
	return q.softCap
}

// Len returns the number of queued envelopes.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Full reports whether the backlog has reached the soft cap.
func (q *Queue) Full() bool {
	return len(q.ch) >= q.softCap
}

// Push enqueues an envelope without blocking.
func (q *Queue) Push(env Envelope) error {
	select {
	case q.ch <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pop waits up to timeout for an envelope. ok is false when the wait ends
// empty, whether by timeout or context cancellation; idle workers use this
// to re-check their stop conditions.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Envelope, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case env := <-q.ch:
		return env, true
	case <-timer.C:
		return Envelope{}, false
	case <-ctx.Done():
		return Envelope{}, false
	}
}

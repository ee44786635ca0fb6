package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"shuttle/internal/manifest"
	"shuttle/internal/records"
)

var (
	// ErrUnknownJob indicates the asset id is not part of the ledger.
	ErrUnknownJob = errors.New("unknown job")
	// ErrNotClaimed indicates a mark was attempted on a job that is not
	// currently claimed.
	ErrNotClaimed = errors.New("job not claimed")
)

// State is the lifecycle position of a job.
type State string

const (
	StatePending  State = "pending"
	StateClaimed  State = "claimed"
	StateUploaded State = "uploaded"
	// StateFailed marks jobs abandoned at shutdown with a claim outstanding.
	// During normal operation failures requeue as pending.
	StateFailed State = "failed"
)

// ParseState validates a wire-format state string.
func ParseState(value string) (State, error) {
	switch State(value) {
	case StatePending, StateClaimed, StateUploaded, StateFailed:
		return State(value), nil
	default:
		return "", fmt.Errorf("unknown job state %q", value)
	}
}

// Job is one asset's position in the upload lifecycle.
type Job struct {
	Asset    manifest.Asset
	State    State
	Attempts int
}

// Counts summarizes ledger occupancy.
type Counts struct {
	Total          int
	Pending        int
	Claimed        int
	Uploaded       int
	Failed         int
	FailedAttempts int
}

// RecordAppender persists upload records. Satisfied by *records.Store.
type RecordAppender interface {
	Append(ctx context.Context, rec records.Record) error
}

// Ledger tracks every job in the collection. Claims are handed out by the
// distributor; marks are driven by the status aggregator. No other caller
// moves a job between states.
type Ledger struct {
	mu    sync.Mutex
	jobs  map[int]*Job
	order []int
	store RecordAppender

	failedAttempts int
}

// New seeds a ledger from manifest assets, skipping every asset whose id
// already has a durable upload record. store receives the record appended by
// MarkUploaded; it may be nil only in tests that never mark uploads.
func New(assets []manifest.Asset, uploaded map[int]struct{}, store RecordAppender) *Ledger {
	l := &Ledger{
		jobs:  make(map[int]*Job, len(assets)),
		store: store,
	}
	for _, asset := range assets {
		state := StatePending
		if _, done := uploaded[asset.ID]; done {
			state = StateUploaded
		}
		l.jobs[asset.ID] = &Job{Asset: asset, State: state}
		l.order = append(l.order, asset.ID)
	}
	sort.Ints(l.order)
	return l
}

// ClaimNext hands out the lowest-id pending job, moving it to claimed.
// ok is false when no pending jobs remain; distribution is over.
func (l *Ledger) ClaimNext() (Job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range l.order {
		job := l.jobs[id]
		if job.State != StatePending {
			continue
		}
		job.State = StateClaimed
		return *job, true
	}
	return Job{}, false
}

// MarkUploaded finishes a claimed job. The record is appended to the durable
// store before the state flips; if the append fails, the job stays claimed
// and the error is returned.
func (l *Ledger) MarkUploaded(ctx context.Context, assetID int, rec records.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, ok := l.jobs[assetID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownJob, assetID)
	}
	if job.State != StateClaimed {
		return fmt.Errorf("%w: %d is %s", ErrNotClaimed, assetID, job.State)
	}

	if l.store != nil {
		rec.AssetID = assetID
		if err := l.store.Append(ctx, rec); err != nil {
			return fmt.Errorf("persist upload record: %w", err)
		}
	}
	job.State = StateUploaded
	return nil
}

// MarkFailed returns a claimed job to pending so it can be claimed again.
// Retries are not capped.
func (l *Ledger) MarkFailed(assetID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, ok := l.jobs[assetID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownJob, assetID)
	}
	if job.State != StateClaimed {
		return fmt.Errorf("%w: %d is %s", ErrNotClaimed, assetID, job.State)
	}
	job.State = StatePending
	job.Attempts++
	l.failedAttempts++
	return nil
}

// AbandonClaims marks every outstanding claim failed. Called once at
// shutdown so the final snapshot does not report phantom in-flight jobs;
// a restart reseeds these as pending.
func (l *Ledger) AbandonClaims() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	abandoned := 0
	for _, id := range l.order {
		job := l.jobs[id]
		if job.State == StateClaimed {
			job.State = StateFailed
			abandoned++
		}
	}
	return abandoned
}

// Get returns a copy of the job for an asset id.
func (l *Ledger) Get(assetID int) (Job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	job, ok := l.jobs[assetID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Counts reports ledger occupancy by state.
func (l *Ledger) Counts() Counts {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := Counts{Total: len(l.order), FailedAttempts: l.failedAttempts}
	for _, job := range l.jobs {
		switch job.State {
		case StatePending:
			counts.Pending++
		case StateClaimed:
			counts.Claimed++
		case StateUploaded:
			counts.Uploaded++
		case StateFailed:
			counts.Failed++
		}
	}
	return counts
}

// Jobs returns a stable-ordered copy of every job.
func (l *Ledger) Jobs() []Job {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Job, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.jobs[id])
	}
	return out
}

package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"shuttle/internal/manifest"
	"shuttle/internal/records"
	"shuttle/internal/token"
)

// ErrTimeout reports an upload that exceeded its allowed time. The worker
// maps it to a distinct result event; all other failures fold into a generic
// error result.
var ErrTimeout = errors.New("upload timed out")

// Result is the outcome of one upload attempt.
type Result struct {
	Record      *records.Record
	RawResponse string
	Duration    time.Duration
}

// Transport performs the actual upload. Implementations must honor ctx
// cancellation and return ErrTimeout (possibly wrapped) when the attempt ran
// out of time.
type Transport interface {
	Upload(ctx context.Context, shaped manifest.Shaped, tok token.Token) (Result, error)
}

// Emulator is a transport that fabricates successful uploads after a fixed
// delay. Used for pacing rehearsals and tests. FailEvery > 0 makes every
// Nth upload fail so retry paths stay exercised.
type Emulator struct {
	Delay     time.Duration
	FailEvery int

	counter atomic.Int64
}

var _ Transport = (*Emulator)(nil)

func (e *Emulator) Upload(ctx context.Context, shaped manifest.Shaped, _ token.Token) (Result, error) {
	start := time.Now()
	if e.Delay > 0 {
		timer := time.NewTimer(e.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Result{Duration: time.Since(start)}, ErrTimeout
			}
			return Result{Duration: time.Since(start)}, ctx.Err()
		}
	}

	n := e.counter.Add(1)
	if e.FailEvery > 0 && n%int64(e.FailEvery) == 0 {
		return Result{Duration: time.Since(start)}, fmt.Errorf("emulated failure for asset %d", shaped.AssetID)
	}

	return Result{
		Record: &records.Record{
			AssetID:         shaped.AssetID,
			TokenID:         fmt.Sprintf("%d", shaped.AssetID),
			ContractAddress: "0x0000000000000000000000000000000000000000",
			ContractChain:   shaped.Payload.Chain,
			ContractType:    "emulated",
			AssetType:       "emulated",
		},
		Duration: time.Since(start),
	}, nil
}

package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"shuttle/internal/ledger"
	"shuttle/internal/manifest"
	"shuttle/internal/records"
)

func assets(ids ...int) []manifest.Asset {
	out := make([]manifest.Asset, 0, len(ids))
	for _, id := range ids {
		out = append(out, manifest.Asset{ID: id, FileName: "x.png"})
	}
	return out
}

type memAppender struct {
	mu   sync.Mutex
	recs []records.Record
	err  error
}

func (m *memAppender) Append(_ context.Context, rec records.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func TestClaimNextSkipsUploadedAndExhausts(t *testing.T) {
	l := ledger.New(assets(1, 2, 3), map[int]struct{}{2: {}}, &memAppender{})

	first, ok := l.ClaimNext()
	if !ok || first.Asset.ID != 1 {
		t.Fatalf("first claim = (%v, %v), want job 1", first.Asset.ID, ok)
	}
	second, ok := l.ClaimNext()
	if !ok || second.Asset.ID != 3 {
		t.Fatalf("second claim = (%v, %v), want job 3", second.Asset.ID, ok)
	}
	if _, ok := l.ClaimNext(); ok {
		t.Fatal("third claim should report exhaustion")
	}
}

func TestClaimNextNeverDoubleClaims(t *testing.T) {
	l := ledger.New(assets(1, 2, 3, 4, 5, 6, 7, 8), nil, &memAppender{})

	var mu sync.Mutex
	claimed := map[int]int{}
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok := l.ClaimNext()
				if !ok {
					return
				}
				mu.Lock()
				claimed[job.Asset.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != 8 {
		t.Fatalf("claimed %d distinct jobs, want 8", len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("job %d claimed %d times", id, n)
		}
	}
}

func TestMarkUploadedAppendsBeforeFlip(t *testing.T) {
	store := &memAppender{}
	l := ledger.New(assets(1), nil, store)

	if _, ok := l.ClaimNext(); !ok {
		t.Fatal("claim failed")
	}
	rec := records.Record{TokenID: "99", ContractChain: "MATIC"}
	if err := l.MarkUploaded(t.Context(), 1, rec); err != nil {
		t.Fatalf("MarkUploaded: %v", err)
	}
	if len(store.recs) != 1 || store.recs[0].AssetID != 1 {
		t.Fatalf("record not appended: %+v", store.recs)
	}
	job, _ := l.Get(1)
	if job.State != ledger.StateUploaded {
		t.Fatalf("state = %s, want uploaded", job.State)
	}
	// Terminal: marking again must fail.
	if err := l.MarkUploaded(t.Context(), 1, rec); !errors.Is(err, ledger.ErrNotClaimed) {
		t.Fatalf("second MarkUploaded err = %v, want ErrNotClaimed", err)
	}
}

func TestMarkUploadedKeepsClaimOnAppendFailure(t *testing.T) {
	store := &memAppender{err: errors.New("disk gone")}
	l := ledger.New(assets(1), nil, store)
	l.ClaimNext()

	if err := l.MarkUploaded(t.Context(), 1, records.Record{}); err == nil {
		t.Fatal("expected append failure to surface")
	}
	job, _ := l.Get(1)
	if job.State != ledger.StateClaimed {
		t.Fatalf("state = %s, want claimed after failed append", job.State)
	}
}

func TestMarkFailedRequeues(t *testing.T) {
	l := ledger.New(assets(1), nil, &memAppender{})
	l.ClaimNext()

	if err := l.MarkFailed(1); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	job, _ := l.Get(1)
	if job.State != ledger.StatePending {
		t.Fatalf("state = %s, want pending", job.State)
	}
	if job.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", job.Attempts)
	}

	// The same job can be claimed and failed again, without limit.
	if _, ok := l.ClaimNext(); !ok {
		t.Fatal("requeued job should be claimable")
	}
	if err := l.MarkFailed(1); err != nil {
		t.Fatalf("second MarkFailed: %v", err)
	}
	if got := l.Counts().FailedAttempts; got != 2 {
		t.Fatalf("FailedAttempts = %d, want 2", got)
	}
}

func TestMarkRequiresClaim(t *testing.T) {
	l := ledger.New(assets(1), nil, &memAppender{})

	if err := l.MarkFailed(1); !errors.Is(err, ledger.ErrNotClaimed) {
		t.Fatalf("MarkFailed on pending err = %v, want ErrNotClaimed", err)
	}
	if err := l.MarkUploaded(t.Context(), 1, records.Record{}); !errors.Is(err, ledger.ErrNotClaimed) {
		t.Fatalf("MarkUploaded on pending err = %v, want ErrNotClaimed", err)
	}
	if err := l.MarkFailed(42); !errors.Is(err, ledger.ErrUnknownJob) {
		t.Fatalf("unknown job err = %v, want ErrUnknownJob", err)
	}
}

func TestCountsAndAbandonClaims(t *testing.T) {
	l := ledger.New(assets(1, 2, 3), map[int]struct{}{3: {}}, &memAppender{})
	l.ClaimNext()

	counts := l.Counts()
	if counts.Total != 3 || counts.Pending != 1 || counts.Claimed != 1 || counts.Uploaded != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	if got := l.AbandonClaims(); got != 1 {
		t.Fatalf("AbandonClaims = %d, want 1", got)
	}
	counts = l.Counts()
	if counts.Failed != 1 || counts.Claimed != 0 {
		t.Fatalf("counts after abandon: %+v", counts)
	}
}

func TestParseState(t *testing.T) {
	for _, valid := range []string{"pending", "claimed", "uploaded", "failed"} {
		if _, err := ledger.ParseState(valid); err != nil {
			t.Fatalf("ParseState(%q): %v", valid, err)
		}
	}
	if _, err := ledger.ParseState("shipped"); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

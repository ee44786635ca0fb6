package status_test

import (
	"reflect"
	"testing"
	"time"

	"shuttle/internal/bus"
	"shuttle/internal/ledger"
	"shuttle/internal/manifest"
	"shuttle/internal/records"
	"shuttle/internal/status"
)

func TestSnapshotRoundTrip(t *testing.T) {
	original := status.Snapshot{
		Assets: status.AssetTotals{Total: 10, Uploaded: 4, Remaining: 6, FailedAttempts: 2, SessionUploads: 3},
		Workers: []status.WorkerInfo{
			{ID: 1, State: status.WorkerStateReady, Uploads: 2, SetupMS: 1200},
			{ID: 2, State: status.WorkerStateSettingUp},
		},
		Engine: status.EngineInfo{
			Uploading:        true,
			BacklogExhausted: false,
			QueueDepth:       7,
			MaxWorkers:       4,
			AppVersion:       "dev",
			APIVersion:       "1",
		},
		ActiveObservers: 2,
		Timings: status.Timings{
			LastUploadMS: 900,
			LastSetupMS:  1200,
			AvgUpload:    status.Average{Count: 3, SumMS: 2700},
			AvgSetup:     status.Average{Count: 2, SumMS: 2400},
		},
	}

	data, err := status.EncodeSnapshot(original)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	decoded, err := status.DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round trip mismatch:\n  in:  %+v\n  out: %+v", original, decoded)
	}
}

func TestDecodeSnapshotRejectsWrongType(t *testing.T) {
	if _, err := status.DecodeSnapshot([]byte(`{"type":"something_else"}`)); err == nil {
		t.Fatal("expected error for wrong discriminant")
	}
	if _, err := status.DecodeSnapshot([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestAverage(t *testing.T) {
	var avg status.Average
	if avg.MeanMS() != 0 {
		t.Fatal("empty average should be 0")
	}
	avg.Add(100 * time.Millisecond)
	avg.Add(300 * time.Millisecond)
	if avg.Count != 2 || avg.SumMS != 400 {
		t.Fatalf("average state = %+v", avg)
	}
	if avg.MeanMS() != 200 {
		t.Fatalf("MeanMS = %d, want 200", avg.MeanMS())
	}
}

type harness struct {
	ledger *ledger.Ledger
	events *bus.Events
	agg    *status.Aggregator
}

func newHarness(t *testing.T, ids ...int) *harness {
	t.Helper()
	assets := make([]manifest.Asset, 0, len(ids))
	for _, id := range ids {
		assets = append(assets, manifest.Asset{ID: id, FileName: "x.png"})
	}
	ld := ledger.New(assets, nil, nil)
	events := bus.NewEvents()
	queue := bus.NewQueue(20)
	gate := bus.NewGate(true)
	agg := status.NewAggregator(ld, queue, gate, events, 4, nil)
	go agg.Run(t.Context())
	return &harness{ledger: ld, events: events, agg: agg}
}

func (h *harness) waitSnapshot(t *testing.T, ok func(status.Snapshot) bool) status.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last status.Snapshot
	for time.Now().Before(deadline) {
		last = h.agg.Snapshot()
		if ok(last) {
			return last
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("snapshot condition never met, last: %+v", last)
	return last
}

func TestSessionUploadsIncrementOncePerCompleted(t *testing.T) {
	h := newHarness(t, 1, 2)
	h.ledger.ClaimNext()
	h.ledger.ClaimNext()

	rec := &records.Record{TokenID: "t"}
	h.events.Publish(bus.Event{Kind: bus.KindUploadCompleted, WorkerID: 1, AssetID: 1, Record: rec, Duration: 100 * time.Millisecond})
	h.waitSnapshot(t, func(s status.Snapshot) bool { return s.Assets.SessionUploads == 1 })

	// A duplicate completed event for an already-uploaded job must not
	// increment again; the mark is rejected.
	h.events.Publish(bus.Event{Kind: bus.KindUploadCompleted, WorkerID: 1, AssetID: 1, Record: rec, Duration: 100 * time.Millisecond})
	h.events.Publish(bus.Event{Kind: bus.KindUploadCompleted, WorkerID: 1, AssetID: 2, Record: rec, Duration: 300 * time.Millisecond})

	snap := h.waitSnapshot(t, func(s status.Snapshot) bool { return s.Assets.SessionUploads == 2 })
	if snap.Assets.Uploaded != 2 {
		t.Fatalf("uploaded = %d, want 2", snap.Assets.Uploaded)
	}
	if snap.Timings.AvgUpload.Count != 2 || snap.Timings.AvgUpload.SumMS != 400 {
		t.Fatalf("avg upload = %+v", snap.Timings.AvgUpload)
	}
	if snap.Timings.LastUploadMS != 300 {
		t.Fatalf("last upload = %d", snap.Timings.LastUploadMS)
	}
}

func TestFailureRequeuesJob(t *testing.T) {
	h := newHarness(t, 1)
	h.ledger.ClaimNext()

	h.events.Publish(bus.Event{Kind: bus.KindUploadTimedOut, WorkerID: 1, AssetID: 1})
	snap := h.waitSnapshot(t, func(s status.Snapshot) bool { return s.Assets.FailedAttempts == 1 })
	if snap.Assets.Uploaded != 0 {
		t.Fatalf("uploaded = %d, want 0", snap.Assets.Uploaded)
	}

	job, _ := h.ledger.Get(1)
	if job.State != ledger.StatePending {
		t.Fatalf("job state = %s, want pending after requeue", job.State)
	}
}

func TestWorkerVisibleWhileSettingUp(t *testing.T) {
	h := newHarness(t, 1)

	h.events.Publish(bus.Event{Kind: bus.KindWorkerStarting, WorkerID: 1})
	snap := h.waitSnapshot(t, func(s status.Snapshot) bool { return len(s.Workers) == 1 })
	if snap.Workers[0].State != status.WorkerStateSettingUp {
		t.Fatalf("worker state = %q, want %q", snap.Workers[0].State, status.WorkerStateSettingUp)
	}

	h.events.Publish(bus.Event{Kind: bus.KindWorkerReady, WorkerID: 1, Duration: 500 * time.Millisecond})
	h.waitSnapshot(t, func(s status.Snapshot) bool {
		return len(s.Workers) == 1 && s.Workers[0].State == status.WorkerStateReady
	})

	// A worker that never completes setup disappears again.
	h.events.Publish(bus.Event{Kind: bus.KindWorkerStarting, WorkerID: 2})
	h.events.Publish(bus.Event{Kind: bus.KindWorkerSetupAbandoned, WorkerID: 2})
	h.waitSnapshot(t, func(s status.Snapshot) bool { return len(s.Workers) == 1 })
}

func TestWorkerBookkeeping(t *testing.T) {
	h := newHarness(t, 1)

	h.events.Publish(bus.Event{Kind: bus.KindWorkerReady, WorkerID: 1, Duration: 1200 * time.Millisecond})
	h.events.Publish(bus.Event{Kind: bus.KindWorkerReady, WorkerID: 2, Duration: 800 * time.Millisecond})
	snap := h.waitSnapshot(t, func(s status.Snapshot) bool { return len(s.Workers) == 2 })
	if snap.Workers[0].ID != 1 || snap.Workers[0].SetupMS != 1200 {
		t.Fatalf("worker 1 = %+v", snap.Workers[0])
	}
	if snap.Engine.MaxWorkers != 4 {
		t.Fatalf("max workers = %d, want 4", snap.Engine.MaxWorkers)
	}
	if snap.Timings.AvgSetup.Count != 2 {
		t.Fatalf("avg setup = %+v", snap.Timings.AvgSetup)
	}

	h.events.Publish(bus.Event{Kind: bus.KindWorkerStopped, WorkerID: 2})
	h.waitSnapshot(t, func(s status.Snapshot) bool { return len(s.Workers) == 1 })

	h.events.Publish(bus.Event{Kind: bus.KindCapacityExceeded})
	snap = h.waitSnapshot(t, func(s status.Snapshot) bool { return s.Engine.CapacityRejections == 1 })
	if snap.Engine.QueueDepth != 0 {
		t.Fatalf("queue depth = %d", snap.Engine.QueueDepth)
	}
}

func TestBacklogExhaustedFlag(t *testing.T) {
	h := newHarness(t, 1)
	h.events.Publish(bus.Event{Kind: bus.KindBacklogExhausted})
	h.waitSnapshot(t, func(s status.Snapshot) bool { return s.Engine.BacklogExhausted })
}

func TestObserverCount(t *testing.T) {
	h := newHarness(t, 1)
	h.agg.SetActiveObservers(3)
	if got := h.agg.Snapshot().ActiveObservers; got != 3 {
		t.Fatalf("ActiveObservers = %d, want 3", got)
	}
}

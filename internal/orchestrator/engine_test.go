package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shuttle/internal/config"
	"shuttle/internal/ledger"
	"shuttle/internal/manifest"
	"shuttle/internal/observer"
	"shuttle/internal/orchestrator"
	"shuttle/internal/status"
	"shuttle/internal/token"
	"shuttle/internal/uploader"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Workers.PollTimeoutMS = 20
	cfg.Workers.Initial = 2
	cfg.Distributor.CadenceMS = 1
	cfg.Distributor.IdleWaitMS = 10
	cfg.Broadcast.IntervalMS = 50
	cfg.Collection.Name = "Test"
	cfg.Collection.SingleAssetName = "Asset"
	return &cfg
}

func newEngine(t *testing.T, cfg *config.Config, ids ...int) (*orchestrator.Engine, *ledger.Ledger) {
	t.Helper()
	assets := make([]manifest.Asset, 0, len(ids))
	for _, id := range ids {
		assets = append(assets, manifest.Asset{ID: id, Path: "/data/x.png", FileName: "x.png"})
	}
	ld := ledger.New(assets, nil, nil)
	engine := orchestrator.New(cfg, orchestrator.Deps{
		Ledger:    ld,
		Tokens:    token.NewSource(token.Emulation()),
		Transport: &uploader.Emulator{},
		Shaper:    manifest.DefaultShaper{Collection: cfg.Collection},
		Registry:  observer.NewRegistry(""),
	})
	return engine, ld
}

func waitSnapshot(t *testing.T, engine *orchestrator.Engine, ok func(status.Snapshot) bool) status.Snapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	var last status.Snapshot
	for time.Now().Before(deadline) {
		last = engine.Snapshot()
		if ok(last) {
			return last
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("snapshot condition never met, last: %+v", last)
	return last
}

func TestEngineUploadsEverything(t *testing.T) {
	cfg := testConfig()
	engine, ld := newEngine(t, cfg, 1, 2, 3, 4, 5)

	if err := engine.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer engine.Stop()

	// Gate starts closed: neither distribution nor uploads move.
	time.Sleep(50 * time.Millisecond)
	snap0 := engine.Snapshot()
	if snap0.Assets.SessionUploads != 0 || snap0.Engine.QueueDepth != 0 {
		t.Fatalf("engine moved before gate opened: %+v", snap0)
	}

	if err := engine.StartUploading(); err != nil {
		t.Fatalf("StartUploading: %v", err)
	}

	snap := waitSnapshot(t, engine, func(s status.Snapshot) bool {
		return s.Assets.Uploaded == 5 && s.Engine.BacklogExhausted
	})
	if snap.Assets.SessionUploads != 5 {
		t.Fatalf("session uploads = %d, want 5", snap.Assets.SessionUploads)
	}
	if counts := ld.Counts(); counts.Pending != 0 || counts.Claimed != 0 {
		t.Fatalf("ledger not drained: %+v", counts)
	}
}

func TestEnginePauseStopsNewUploads(t *testing.T) {
	cfg := testConfig()
	engine, _ := newEngine(t, cfg, 1, 2, 3, 4, 5, 6, 7, 8)

	if err := engine.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer engine.Stop()

	if err := engine.StartUploading(); err != nil {
		t.Fatalf("StartUploading: %v", err)
	}
	waitSnapshot(t, engine, func(s status.Snapshot) bool { return s.Assets.SessionUploads >= 1 })

	if err := engine.StopUploading(); err != nil {
		t.Fatalf("StopUploading: %v", err)
	}
	// In-flight uploads may land; after they do, the count must freeze.
	time.Sleep(100 * time.Millisecond)
	frozen := engine.Snapshot().Assets.SessionUploads
	time.Sleep(150 * time.Millisecond)
	if got := engine.Snapshot().Assets.SessionUploads; got != frozen {
		t.Fatalf("uploads advanced while paused: %d -> %d", frozen, got)
	}
}

func TestEngineWorkerControls(t *testing.T) {
	cfg := testConfig()
	cfg.Workers.Initial = 1
	engine, _ := newEngine(t, cfg, 1)

	if err := engine.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer engine.Stop()

	added, err := engine.AddWorkers(10)
	if err == nil {
		t.Fatal("adding past the ceiling should error")
	}
	if added != cfg.Workers.Max-1 {
		t.Fatalf("added = %d, want %d", added, cfg.Workers.Max-1)
	}

	stopped, err := engine.StopWorkers(2)
	if err != nil || stopped != 2 {
		t.Fatalf("StopWorkers = (%d, %v), want (2, nil)", stopped, err)
	}
}

func TestEngineControlsRejectWhenStopped(t *testing.T) {
	engine, _ := newEngine(t, testConfig(), 1)

	if err := engine.StartUploading(); err != orchestrator.ErrNotRunning {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
	if _, err := engine.AddWorkers(1); err != orchestrator.ErrNotRunning {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}

func TestEngineStopAbandonsClaims(t *testing.T) {
	cfg := testConfig()
	cfg.Workers.Initial = 1
	cfg.Workers.SetupAttempts = 1

	// Workers never finish setup, so distributed jobs sit claimed in the
	// queue with nobody to consume them.
	assets := []manifest.Asset{
		{ID: 1, Path: "/data/x.png", FileName: "x.png"},
		{ID: 2, Path: "/data/x.png", FileName: "x.png"},
		{ID: 3, Path: "/data/x.png", FileName: "x.png"},
	}
	ld := ledger.New(assets, nil, nil)
	engine := orchestrator.New(cfg, orchestrator.Deps{
		Ledger:    ld,
		Tokens:    token.NewSource(token.Emulation()),
		Transport: &uploader.Emulator{},
		Shaper:    manifest.DefaultShaper{Collection: cfg.Collection},
		Registry:  observer.NewRegistry(""),
		Setup:     func(context.Context, int) error { return errors.New("session refused") },
	})

	if err := engine.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := engine.StartUploading(); err != nil {
		t.Fatalf("StartUploading: %v", err)
	}
	waitSnapshot(t, engine, func(s status.Snapshot) bool { return s.Engine.BacklogExhausted })
	engine.Stop()

	counts := ld.Counts()
	if counts.Claimed != 0 {
		t.Fatalf("claims outstanding after stop: %+v", counts)
	}
	if counts.Failed != 3 {
		t.Fatalf("failed = %d, want 3 abandoned claims", counts.Failed)
	}
	if engine.Running() {
		t.Fatal("engine should report stopped")
	}
}

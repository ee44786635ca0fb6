package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// WireType is the discriminant stamped on encoded snapshots. It exists only
// at the wire boundary; in-memory snapshots are plain typed structs.
const WireType = "status_snapshot"

// AssetTotals summarizes ledger occupancy for observers.
type AssetTotals struct {
	Total          int `json:"total"`
	Uploaded       int `json:"uploaded"`
	Remaining      int `json:"remaining"`
	FailedAttempts int `json:"failed_attempts"`
	// SessionUploads counts uploads completed by this daemon run, excluding
	// records that predate it.
	SessionUploads int `json:"session_uploads"`
}

// WorkerInfo is one worker's line in the snapshot.
type WorkerInfo struct {
	ID      int    `json:"id"`
	State   string `json:"state"`
	Uploads int    `json:"uploads"`
	SetupMS int64  `json:"setup_ms"`
}

// EngineInfo reports the control-plane position of the engine.
type EngineInfo struct {
	Uploading          bool   `json:"uploading"`
	BacklogExhausted   bool   `json:"backlog_exhausted"`
	QueueDepth         int    `json:"queue_depth"`
	MaxWorkers         int    `json:"max_workers"`
	CapacityRejections int    `json:"capacity_rejections"`
	AppVersion         string `json:"app_version"`
	APIVersion         string `json:"api_version"`
}

// Average is a rolling mean over durations, kept as integer milliseconds so
// snapshots survive an encode/decode round trip unchanged.
type Average struct {
	Count int   `json:"count"`
	SumMS int64 `json:"sum_ms"`
}

// Add folds one sample into the mean.
func (a *Average) Add(d time.Duration) {
	a.Count++
	a.SumMS += d.Milliseconds()
}

// MeanMS returns the mean in milliseconds, zero when empty.
func (a Average) MeanMS() int64 {
	if a.Count == 0 {
		return 0
	}
	return a.SumMS / int64(a.Count)
}

// Timings carries last and mean durations for uploads and worker setup.
type Timings struct {
	LastUploadMS int64   `json:"last_upload_ms"`
	LastSetupMS  int64   `json:"last_setup_ms"`
	AvgUpload    Average `json:"avg_upload"`
	AvgSetup     Average `json:"avg_setup"`
}

// Snapshot is the full state pushed to observers and served on /ui/state.
type Snapshot struct {
	Assets          AssetTotals  `json:"assets"`
	Workers         []WorkerInfo `json:"workers"`
	Engine          EngineInfo   `json:"engine"`
	ActiveObservers int          `json:"active_observers"`
	Timings         Timings      `json:"timings"`
}

type wireSnapshot struct {
	Type string `json:"type"`
	Snapshot
}

// EncodeSnapshot serializes a snapshot with the wire discriminant.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	data, err := json.Marshal(wireSnapshot{Type: WireType, Snapshot: s})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses and validates a wire snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var wire wireSnapshot
	if err := json.Unmarshal(data, &wire); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if wire.Type != WireType {
		return Snapshot{}, fmt.Errorf("decode snapshot: unexpected type %q", wire.Type)
	}
	return wire.Snapshot, nil
}

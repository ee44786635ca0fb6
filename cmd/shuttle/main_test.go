package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shuttle/internal/daemon"
	"shuttle/internal/status"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output does not mention target: %q", out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[collection]") {
		t.Fatal("sample config missing collection section")
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init without --overwrite should fail")
	}
}

func TestParseCount(t *testing.T) {
	if n, err := parseCount(nil); err != nil || n != 1 {
		t.Fatalf("parseCount(nil) = (%d, %v)", n, err)
	}
	if n, err := parseCount([]string{"3"}); err != nil || n != 3 {
		t.Fatalf("parseCount(3) = (%d, %v)", n, err)
	}
	if _, err := parseCount([]string{"zero"}); err == nil {
		t.Fatal("parseCount should reject non-numeric input")
	}
	if _, err := parseCount([]string{"0"}); err == nil {
		t.Fatal("parseCount should reject zero")
	}
}

func TestStatusJSONAgainstStubDaemon(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ui/init", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(daemon.InitResponse{SessionKey: "key"})
	})
	mux.HandleFunc("/ui/state", func(w http.ResponseWriter, r *http.Request) {
		var snap status.Snapshot
		snap.Assets.Total = 3
		payload, _ := status.EncodeSnapshot(snap)
		_, _ = w.Write(payload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := runCommand(t, "status", "--json", "--addr", srv.URL)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	snap, err := status.DecodeSnapshot([]byte(strings.TrimSpace(out)))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if snap.Assets.Total != 3 {
		t.Fatalf("total = %d, want 3", snap.Assets.Total)
	}
}

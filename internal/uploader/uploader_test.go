package uploader_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shuttle/internal/manifest"
	"shuttle/internal/token"
	"shuttle/internal/uploader"
)

const successBody = `{"data":{"assets":{"create":{"tokenId":"77","assetContract":{"address":"0xabc","chain":"MATIC","id":"Y29udHJhY3Q="},"id":"YXNzZXQ="}}},"status":200}`

func shaped(id int) manifest.Shaped {
	return manifest.Shaped{
		AssetID:  id,
		FilePath: "/data/x.png",
		Payload:  manifest.Payload{Collection: "Apes", Name: "Ape#1", MaxSupply: "1", Chain: "MATIC"},
	}
}

func TestParseResponseSuccess(t *testing.T) {
	rec, err := uploader.ParseResponse([]byte(successBody), 12)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if rec.AssetID != 12 || rec.TokenID != "77" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ContractAddress != "0xabc" || rec.ContractChain != "MATIC" {
		t.Fatalf("contract fields wrong: %+v", rec)
	}
	if rec.ContractType != "Y29udHJhY3Q=" || rec.AssetType != "YXNzZXQ=" {
		t.Fatalf("type fields wrong: %+v", rec)
	}
}

func TestParseResponseErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `<html>busy</html>`},
		{"bad status", `{"status":500}`},
		{"api errors", `{"errors":[{"message":"collection locked"}],"status":200}`},
		{"missing token id", `{"data":{"assets":{"create":{}}},"status":200}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := uploader.ParseResponse([]byte(tc.body), 1); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestHTTPTransportUpload(t *testing.T) {
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"recaptchaToken"`) {
			gotToken = "present"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	transport := uploader.NewHTTPTransport(server.URL, 5*time.Second)
	result, err := transport.Upload(t.Context(), shaped(12), token.Emulation())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.Record == nil || result.Record.AssetID != 12 {
		t.Fatalf("record = %+v", result.Record)
	}
	if gotToken != "present" {
		t.Fatal("request body missing recaptchaToken")
	}
	if result.Duration <= 0 {
		t.Fatal("duration not measured")
	}
}

func TestHTTPTransportTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	transport := uploader.NewHTTPTransport(server.URL, time.Minute)
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := transport.Upload(ctx, shaped(1), token.Emulation())
	if !errors.Is(err, uploader.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestHTTPTransportRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"nope"}],"status":200}`))
	}))
	defer server.Close()

	transport := uploader.NewHTTPTransport(server.URL, time.Second)
	result, err := transport.Upload(t.Context(), shaped(1), token.Emulation())
	if err == nil {
		t.Fatal("expected rejection error")
	}
	if result.Record != nil {
		t.Fatal("rejected upload must not yield a record")
	}
	if !strings.Contains(result.RawResponse, "nope") {
		t.Fatalf("raw response not captured: %q", result.RawResponse)
	}
}

func TestEmulatorSucceedsAndFails(t *testing.T) {
	emu := &uploader.Emulator{FailEvery: 3}
	for i := 1; i <= 3; i++ {
		result, err := emu.Upload(t.Context(), shaped(i), token.Emulation())
		if i == 3 {
			if err == nil {
				t.Fatal("third upload should fail with FailEvery=3")
			}
			continue
		}
		if err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
		if result.Record == nil || result.Record.AssetID != i {
			t.Fatalf("upload %d record = %+v", i, result.Record)
		}
	}
}

func TestEmulatorHonorsDeadline(t *testing.T) {
	emu := &uploader.Emulator{Delay: time.Second}
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err := emu.Upload(ctx, shaped(1), token.Emulation())
	if !errors.Is(err, uploader.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

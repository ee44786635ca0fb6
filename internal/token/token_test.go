package token_test

import (
	"testing"
	"time"

	"shuttle/internal/token"
)

func TestExpiry(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok := token.Token{Value: "abc", IssuedAt: issued, CanExpire: true, TTL: 115 * time.Second}

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"fresh", issued.Add(10 * time.Second), false},
		{"just inside ttl", issued.Add(114 * time.Second), false},
		{"at ttl", issued.Add(115 * time.Second), true},
		{"long past", issued.Add(time.Hour), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tok.Expired(tc.at); got != tc.want {
				t.Fatalf("Expired(%s) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestNonExpiringToken(t *testing.T) {
	tok := token.Token{Value: "static", IssuedAt: time.Unix(0, 0), CanExpire: false}
	if tok.Expired(time.Now().Add(1000 * time.Hour)) {
		t.Fatal("token with CanExpire=false must never expire")
	}
}

func TestEmulationTokenNeverExpires(t *testing.T) {
	tok := token.Emulation()
	if tok.Expired(time.Now().Add(24 * time.Hour)) {
		t.Fatal("emulation token must not expire")
	}
	if tok.Value == "" {
		t.Fatal("emulation token must carry a value")
	}
}

func TestSourceReplace(t *testing.T) {
	src := token.NewSource(token.Emulation())
	fresh := token.Token{Value: "fresh", IssuedAt: time.Now(), CanExpire: true}
	src.Replace(fresh)
	if got := src.Current(); got.Value != "fresh" {
		t.Fatalf("Current = %q, want fresh token", got.Value)
	}
}

// Package token holds the shared upload authorization token and its expiry
// policy. Tokens are minted externally; the engine only checks freshness.
package token

import (
	"sync"
	"time"
)

// DefaultTTL is how long a minted token stays usable. The issuer grants two
// minutes; the margin absorbs clock skew and queue latency.
const DefaultTTL = 115 * time.Second

// EmulationValue is the placeholder token paired with jobs when no real
// issuer is wired in. It never expires.
const EmulationValue = "QXJlX3Vfc3VyZV9pdF9pc19zYWZlX19idXRfdGhhbmtz"

// Token is an authorization token with its expiry policy.
type Token struct {
	Value     string
	IssuedAt  time.Time
	CanExpire bool
	TTL       time.Duration
}

// Expired reports whether the token is no longer usable at now. Tokens with
// CanExpire unset never expire.
func (t Token) Expired(now time.Time) bool {
	if !t.CanExpire {
		return false
	}
	ttl := t.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return !now.Before(t.IssuedAt.Add(ttl))
}

// Emulation returns the non-expiring placeholder token.
func Emulation() Token {
	return Token{Value: EmulationValue, IssuedAt: time.Now(), CanExpire: false}
}

// Source is the shared token holder. The distributor reads the current token
// when pairing it with a job; the control surface may replace it when a fresh
// token is minted.
type Source struct {
	mu      sync.RWMutex
	current Token
}

// NewSource returns a source primed with tok.
func NewSource(tok Token) *Source {
	return &Source{current: tok}
}

// Current returns the token that should accompany the next job.
func (s *Source) Current() Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace installs a freshly minted token.
func (s *Source) Replace(tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = tok
}

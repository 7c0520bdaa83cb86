package coordinator

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type windowEntry struct {
	netUSD decimal.Decimal
	seenAt time.Time
}

// Window is the path-keyed deduplication window. Two opportunities with the
// same path within the TTL are duplicates regardless of which strategy found
// them; the window admits only the one with the higher net profit. It is safe
// for concurrent use.
type Window struct {
	entries map[string]windowEntry
	ttl     time.Duration
	mu      sync.Mutex
}

// NewWindow creates a Window that treats same-path opportunities within the
// given ttl as duplicates.
func NewWindow(ttl time.Duration) *Window {
	return &Window{
		entries: make(map[string]windowEntry),
		ttl:     ttl,
	}
}

// Admit reports whether an opportunity with this path key and net profit
// supersedes the window's recent entry. An admitted opportunity is recorded;
// a rejected one leaves the window untouched.
func (w *Window) Admit(pathKey string, netUSD decimal.Decimal) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if e, ok := w.entries[pathKey]; ok && now.Sub(e.seenAt) < w.ttl {
		if !netUSD.GreaterThan(e.netUSD) {
			return false
		}
	}

	w.entries[pathKey] = windowEntry{netUSD: netUSD, seenAt: now}
	return true
}

// Cleanup removes entries that have expired beyond the TTL. This should be
// called periodically to prevent unbounded memory growth.
func (w *Window) Cleanup() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	for key, e := range w.entries {
		if now.Sub(e.seenAt) >= w.ttl {
			delete(w.entries, key)
		}
	}
}

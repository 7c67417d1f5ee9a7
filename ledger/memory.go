package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger keeps entries in process memory. It is the server ledger for
// single-instance deployments and local development.
type MemoryLedger struct {
	mu      sync.Mutex
	channel Channel
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
}

// NewMemoryLedger returns an empty ledger. A zero ttl keeps entries forever.
func NewMemoryLedger(channel Channel, ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		channel: channel,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

func (l *MemoryLedger) HasFired(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.liveLocked(key), nil
}

func (l *MemoryLedger) MarkFired(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = l.now()
	return nil
}

func (l *MemoryLedger) Claim(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.liveLocked(key) {
		return false, nil
	}
	l.entries[key] = l.now()
	return true, nil
}

func (l *MemoryLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

func (l *MemoryLedger) liveLocked(key string) bool {
	firedAt, ok := l.entries[key]
	if !ok {
		return false
	}
	if l.ttl > 0 && l.now().Sub(firedAt) > l.ttl {
		delete(l.entries, key)
		return false
	}
	return true
}

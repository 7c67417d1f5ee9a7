package ledger

import (
	"context"
	"sync"
)

// FiredSentinel is the value stored under a pixel_fired_ key.
const FiredSentinel = "true"

// Storage is a string key-value store with the semantics of browser session
// storage. It also backs the pending_order_id fallback.
type Storage interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
}

// SessionStorage is an in-process Storage. Entries live as long as the value.
type SessionStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewSessionStorage() *SessionStorage {
	return &SessionStorage{items: make(map[string]string)}
}

func (s *SessionStorage) GetItem(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *SessionStorage) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

// StorageLedger is the client ledger: a key is fired when Storage holds the
// sentinel under it. Callers pass PixelKey(id).
type StorageLedger struct {
	storage Storage
}

func NewStorageLedger(storage Storage) *StorageLedger {
	return &StorageLedger{storage: storage}
}

func (l *StorageLedger) HasFired(_ context.Context, key string) (bool, error) {
	if l.storage == nil {
		return false, ErrNilBackend
	}
	v, ok, err := l.storage.GetItem(key)
	if err != nil {
		return false, err
	}
	return ok && v == FiredSentinel, nil
}

func (l *StorageLedger) MarkFired(_ context.Context, key string) error {
	if l.storage == nil {
		return ErrNilBackend
	}
	return l.storage.SetItem(key, FiredSentinel)
}

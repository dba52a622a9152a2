package session

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory KV backend for a single broker instance. Sessions
// are not replicated across instances. A non-zero TTL expires entries
// lazily on read; there is no background reaper.
type Memory struct {
	ttl time.Duration

	mu    sync.Mutex
	blobs map[string]memoryEntry
}

type memoryEntry struct {
	value    []byte
	storedAt time.Time
}

// NewMemory constructs an in-memory KV store whose entries never expire.
func NewMemory() *Memory {
	return NewMemoryTTL(0)
}

// NewMemoryTTL constructs an in-memory KV store whose entries expire ttl
// after their last write. A zero ttl disables expiry.
func NewMemoryTTL(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, blobs: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	if m.ttl > 0 && time.Since(e.storedAt) > m.ttl {
		delete(m.blobs, key)
		return nil, false, nil
	}
	// Return a copy so callers can't mutate the stored blob in place.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	out := make([]byte, len(value))
	copy(out, value)
	m.mu.Lock()
	m.blobs[key] = memoryEntry{value: out, storedAt: time.Now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}

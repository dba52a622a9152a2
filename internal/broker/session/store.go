// Package session implements the broker's per-client session contract: a
// KV abstraction holding opaque session blobs, two key-resolution
// strategies (cookie, header fallback), and a Store that serializes
// protocol.Session values into that KV layer with
// at-most-one-writer-per-key semantics.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pcoip-broker/broker/internal/broker/protocol"
)

// KV is the minimal keyed-blob contract the session store backs onto. Two
// backends are provided: an in-memory map (memory.go) and a SQLite-backed
// one (sqlitestore/).
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store serializes protocol.Session values into a KV backend and provides
// at-most-once-at-a-time read-modify-write per session key. A per-key
// mutex is sufficient here since the KV backends themselves are not
// otherwise transactional.
type Store struct {
	kv KV

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore wraps kv with per-key locking and JSON (de)serialization.
func NewStore(kv KV) *Store {
	return &Store{kv: kv, locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the per-key lock for key and returns the function that
// releases it. Callers must hold this lock across the Get/Handle/Set (or
// Delete) sequence for a given key to satisfy the at-most-one-writer
// guarantee. Locks are created lazily and never reaped; session expiry is
// the KV backend's job, the broker core runs no background work.
func (s *Store) Lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Get returns the session stored under key, if any.
func (s *Store) Get(ctx context.Context, key string) (*protocol.Session, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("session store get: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var sess protocol.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("session store decode: %w", err)
	}
	return &sess, nil
}

// Set persists sess under key, overwriting any prior value.
func (s *Store) Set(ctx context.Context, key string, sess *protocol.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session store encode: %w", err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("session store set: %w", err)
	}
	return nil
}

// Delete removes any session stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("session store delete: %w", err)
	}
	return nil
}

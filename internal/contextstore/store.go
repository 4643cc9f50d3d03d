// Package contextstore holds the shared key-value context consulted by
// behavior conditions and the autonomy gate.
//
// The store enforces the single-writer discipline the engine relies on:
// every mutation funnels through one mutex-guarded accessor, and
// behavior conditions only ever see an immutable Snapshot, so one
// firing's action cannot change the inputs a concurrently evaluated
// condition already read.
package contextstore

import (
	"maps"
	"sync"
	"time"
)

// Store is the shared mutable context. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]any
	now  func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		data: make(map[string]any),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores a single key. Callers are responsible for removing stale
// keys they introduce; nothing expires implicitly.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

// Delete removes a key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}

// Update merges the mapping into the store in one critical section.
//
// Context-kind behaviors are re-evaluated on Update; that wiring lives
// in the behavior engine (Engine.UpdateContext), which is the entry
// point the gateway uses. Calling Update directly merges without
// triggering re-evaluation.
func (s *Store) Update(updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	s.mu.Lock()
	maps.Copy(s.data, updates)
	s.mu.Unlock()
}

// Snapshot returns an immutable copy of the store for use inside a
// condition evaluation. TakenAt carries the engine clock so time-based
// conditions stay deterministic under a simulated clock.
//
// The copy is one level deep: stored values are treated as immutable
// by convention. Writers replace values, they never mutate them in
// place.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		values:  maps.Clone(s.data),
		TakenAt: s.now(),
	}
}

// Snapshot is a point-in-time, read-only view of the store.
type Snapshot struct {
	values  map[string]any
	TakenAt time.Time
}

// Get returns the value for key and whether it was present.
func (snap Snapshot) Get(key string) (any, bool) {
	v, ok := snap.values[key]
	return v, ok
}

// String returns the value for key as a string, or "" if absent or not
// a string.
func (snap Snapshot) String(key string) string {
	if v, ok := snap.values[key].(string); ok {
		return v
	}
	return ""
}

// Time returns the value for key as a time.Time. RFC3339 strings are
// accepted so values round-tripped through the JSON API still parse.
func (snap Snapshot) Time(key string) (time.Time, bool) {
	switch v := snap.values[key].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Strings returns the value for key as a string slice, accepting both
// []string and the []any produced by JSON decoding.
func (snap Snapshot) Strings(key string) []string {
	switch v := snap.values[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Len returns the number of keys in the snapshot.
func (snap Snapshot) Len() int {
	return len(snap.values)
}

// Keys returns the snapshot's keys in unspecified order.
func (snap Snapshot) Keys() []string {
	keys := make([]string, 0, len(snap.values))
	for k := range snap.values {
		keys = append(keys, k)
	}
	return keys
}

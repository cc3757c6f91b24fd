// Package modelcache provides a TTL-bounded, single-flight-protected cache.
// Model-list caching and the middleware chain's response cache both share
// this store: one in-flight load per key, stale entries
// expire on read, and a concurrent gap between expiry and reload collapses
// into a single backend call instead of a thundering herd.
package modelcache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Store is an in-memory TTL cache guarded by a single-flight group so
// concurrent misses on the same key result in exactly one Load call.
type Store struct {
	mu    sync.RWMutex
	data  map[string]entry
	group singleflight.Group
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string]entry)}
}

// Get returns the cached value for key if present and unexpired.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL.
func (s *Store) Set(key string, value interface{}, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Delete removes key, if present.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// GetOrLoad returns the cached value for key, or calls load exactly once
// across all concurrent callers on a miss, caching the result for ttl.
// load's error is never cached, so the next call retries.
func (s *Store) GetOrLoad(key string, ttl time.Duration, load func() (interface{}, error)) (interface{}, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if v, ok := s.Get(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		s.Set(key, v, ttl)
		return v, nil
	})
	return v, err
}

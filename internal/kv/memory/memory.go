// Package memory provides an in-process kv.Store for development and tests.
// Contents are lost when the process exits.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hishamos/secrets/internal/kv"
)

// Store implements kv.Store on top of go-cache with no expiration.
type Store struct {
	items *gocache.Cache

	mu     sync.Mutex
	sets   map[string]map[string]struct{}
	closed atomic.Bool

	// Statistics
	hits    atomic.Int64
	misses  atomic.Int64
	writes  atomic.Int64
	deletes atomic.Int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		items: gocache.New(gocache.NoExpiration, 0),
		sets:  make(map[string]map[string]struct{}),
	}
}

// Get retrieves a copy of the value stored at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, kv.ErrClosed
	}
	val, ok := s.items.Get(key)
	if !ok {
		s.misses.Add(1)
		return nil, nil
	}
	b, ok := val.([]byte)
	if !ok {
		s.misses.Add(1)
		return nil, nil
	}
	s.hits.Add(1)
	return append([]byte(nil), b...), nil
}

// Set stores a copy of value at key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return kv.ErrClosed
	}
	s.items.Set(key, append([]byte(nil), value...), gocache.NoExpiration)
	s.writes.Add(1)
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	if s.closed.Load() {
		return kv.ErrClosed
	}
	s.items.Delete(key)
	s.deletes.Add(1)
	return nil
}

// SetAdd adds member to the set at key.
func (s *Store) SetAdd(_ context.Context, key, member string) error {
	if s.closed.Load() {
		return kv.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

// SetRemove removes member from the set at key.
func (s *Store) SetRemove(_ context.Context, key, member string) error {
	if s.closed.Load() {
		return kv.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.sets[key]; ok {
		delete(set, member)
		if len(set) == 0 {
			delete(s.sets, key)
		}
	}
	return nil
}

// SetMembers returns the members of the set at key in sorted order.
func (s *Store) SetMembers(_ context.Context, key string) ([]string, error) {
	if s.closed.Load() {
		return nil, kv.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

// Ping reports whether the store is still open.
func (s *Store) Ping(context.Context) error {
	if s.closed.Load() {
		return kv.ErrClosed
	}
	return nil
}

// Close drops all contents. Subsequent calls fail with kv.ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.items.Flush()
	s.mu.Lock()
	s.sets = make(map[string]map[string]struct{})
	s.mu.Unlock()
	return nil
}

// Stats returns store statistics.
func (s *Store) Stats() kv.Stats {
	hits := s.hits.Load()
	misses := s.misses.Load()
	return kv.Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    s.writes.Load(),
		Deletes: s.deletes.Load(),
		HitRate: kv.HitRate(hits, misses),
	}
}

var _ kv.Store = (*Store)(nil)

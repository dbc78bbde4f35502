package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps the most recent entries in process memory.
// When full, the oldest entry is evicted.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    []*Entry
	maxEntries int
}

// NewMemoryStore creates a store holding at most maxEntries entries.
// A non-positive maxEntries means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{maxEntries: maxEntries}
}

// Create records an entry.
func (s *MemoryStore) Create(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	cp.Fields = append([]string(nil), entry.Fields...)
	s.entries = append(s.entries, &cp)
	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		drop := len(s.entries) - s.maxEntries
		s.entries = append([]*Entry(nil), s.entries[drop:]...)
	}
	return nil
}

// Get retrieves an entry by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// List returns entries matching filter, newest first.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*Entry, int64, error) {
	s.mu.RLock()
	matched := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if matchesFilter(e, filter) {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []*Entry{}, total, nil
	}
	matched = matched[max(filter.Offset, 0):]
	if limit := normalizeLimit(filter.Limit); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// Stats returns aggregated statistics.
func (s *MemoryStore) Stats(_ context.Context, filter Filter) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{ActionCounts: make(map[string]int64)}
	actors := make(map[string]struct{})
	for _, e := range s.entries {
		if !matchesFilter(e, filter) {
			continue
		}
		stats.TotalEvents++
		if e.Success {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
		actors[e.ActorID] = struct{}{}
		stats.ActionCounts[string(e.Action)]++
	}
	stats.UniqueActors = len(actors)
	return stats, nil
}

// DeleteOlderThan removes entries with a timestamp before olderThan.
func (s *MemoryStore) DeleteOlderThan(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if e.Timestamp.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func matchesFilter(e *Entry, filter Filter) bool {
	if filter.ActorID != nil && e.ActorID != *filter.ActorID {
		return false
	}
	if filter.Action != nil && e.Action != *filter.Action {
		return false
	}
	if filter.PathPrefix != "" && !strings.HasPrefix(e.Path, filter.PathPrefix) {
		return false
	}
	if filter.Success != nil && e.Success != *filter.Success {
		return false
	}
	if !filter.StartTime.IsZero() && e.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && e.Timestamp.After(filter.EndTime) {
		return false
	}
	return true
}

var _ Store = (*MemoryStore)(nil)

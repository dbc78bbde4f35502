package secret

import (
	"context"
	"strings"
	"sync"
)

// memBackend is an in-memory Backend that records calls.
type memBackend struct {
	mu      sync.Mutex
	data    map[string]Payload
	meta    map[string]Metadata
	calls   []string
	err     error
	closed  int
	getHits int
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string]Payload), meta: make(map[string]Metadata)}
}

func (m *memBackend) record(op, path string) {
	m.calls = append(m.calls, op+" "+path)
}

func (m *memBackend) Name() string { return "mem" }

func (m *memBackend) Store(_ context.Context, path string, payload Payload, metadata Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("store", path)
	if m.err != nil {
		return m.err
	}
	m.data[path] = payload.Clone()
	if metadata != nil {
		m.meta[path] = metadata
	}
	return nil
}

func (m *memBackend) Get(_ context.Context, path string) (Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("get", path)
	m.getHits++
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.data[path]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *memBackend) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("delete", path)
	if m.err != nil {
		return m.err
	}
	delete(m.data, path)
	return nil
}

func (m *memBackend) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("list", prefix)
	if m.err != nil {
		return nil, m.err
	}
	var paths []string
	for p := range m.data {
		if prefix == "" || strings.HasPrefix(p, prefix+"/") {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil, nil
	}
	return ChildKeys(paths, prefix), nil
}

func (m *memBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

package datastore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/assembly/internal/merge"
)

// memoryTier keeps records in insertion order in process memory.
type memoryTier struct {
	mu   sync.Mutex
	keys []string
	recs map[string]Record
}

func newMemoryTier() *memoryTier {
	return &memoryTier{recs: make(map[string]Record)}
}

func (m *memoryTier) get(ctx context.Context, key string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[key]
	if !ok {
		return nil, nil
	}
	return merge.Clone(rec).(map[string]any), nil
}

func (m *memoryTier) query(ctx context.Context, q Record) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, key := range m.keys {
		if merge.Matches(q, m.recs[key]) {
			out = append(out, merge.Clone(m.recs[key]).(map[string]any))
		}
	}
	return out, nil
}

func (m *memoryTier) count(ctx context.Context, q Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, key := range m.keys {
		if merge.Matches(q, m.recs[key]) {
			n++
		}
	}
	return n, nil
}

func (m *memoryTier) set(ctx context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, _ := rec[KeyField].(string)
	if key == "" {
		key = uuid.NewString()
		rec = merge.Clone(rec).(map[string]any)
		rec[KeyField] = key
	}

	existing, ok := m.recs[key]
	if !ok {
		stored := merge.Integrate(merge.Clone(rec).(map[string]any), Record{})
		m.recs[key] = stored
		m.keys = append(m.keys, key)
		return merge.Clone(stored).(map[string]any), nil
	}

	merged := merge.Integrate(merge.Clone(rec).(map[string]any), existing)
	m.recs[key] = merged
	return merge.Clone(merged).(map[string]any), nil
}

func (m *memoryTier) del(ctx context.Context, key string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key == "" {
		all := make([]Record, 0, len(m.keys))
		for _, k := range m.keys {
			all = append(all, m.recs[k])
		}
		m.keys = nil
		m.recs = make(map[string]Record)
		return all, nil
	}

	rec, ok := m.recs[key]
	if !ok {
		return nil, nil
	}
	delete(m.recs, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return rec, nil
}

func (m *memoryTier) close() error {
	return nil
}

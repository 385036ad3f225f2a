package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// SaveMessage implements Store.
func (s *MemoryStore) SaveMessage(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.MessageID] = rec
	return nil
}

// GetMessage implements Store.
func (s *MemoryStore) GetMessage(_ context.Context, messageID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// ListMessages implements Store.
func (s *MemoryStore) ListMessages(_ context.Context, filter Filter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for _, rec := range s.records {
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if filter.Service != "" && rec.Service != filter.Service {
			continue
		}
		if filter.Action != "" && rec.Action != filter.Action {
			continue
		}
		if filter.Since != nil && rec.ReceivedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close(context.Context) error { return nil }

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

var _ Store = (*MemoryStore)(nil)

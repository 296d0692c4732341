package fall

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps events in process
type MemoryStore struct {
	mu     sync.Mutex
	events []FallEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(ctx context.Context, event FallEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]FallEvent, error) {
	m.mu.Lock()
	out := append([]FallEvent(nil), m.events...)
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

package seq

import (
	"context"
	"sync"
)

// MemSequencer is the in-memory Sequencer used by tests and single-process
// setups without Redis.
type MemSequencer struct {
	mu   sync.Mutex
	next map[string]int64
}

func NewMemSequencer() *MemSequencer {
	return &MemSequencer{next: make(map[string]int64)}
}

func (m *MemSequencer) Next(_ context.Context, convID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next[convID]++
	return m.next[convID], nil
}

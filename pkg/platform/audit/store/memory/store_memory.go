package memory

import (
	"context"
	"sync"

	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/audit"
)

// InMemoryStore keeps events in append order for tests and single-node
// deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	events  []audit.Event
	byToken map[id.Identifier][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byToken: make(map[id.Identifier][]int)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.byToken = make(map[id.Identifier][]int)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[event.TokenID] = append(s.byToken[event.TokenID], len(s.events))
	s.events = append(s.events, event)
	return nil
}

// ListByToken returns the history of one entry, oldest first.
func (s *InMemoryStore) ListByToken(_ context.Context, tokenID id.Identifier) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, 0, len(s.byToken[tokenID]))
	for _, i := range s.byToken[tokenID] {
		out = append(out, s.events[i])
	}
	return out, nil
}

// ListAll returns every event in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...), nil
}

// ListRecent returns the most recent limit events, oldest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.events) - limit
	if start < 0 {
		start = 0
	}
	return append([]audit.Event{}, s.events[start:]...), nil
}

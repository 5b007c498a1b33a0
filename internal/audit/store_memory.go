package audit

import (
	"context"
	"sync"

	id "healthpass/pkg/domain"
)

// InMemoryStore keeps events in append order. Insertion order is
// chronological order; nothing is ever reordered or removed.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID id.OwnerID, scope Scope) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	// Walk backwards so callers get most-recent-first.
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if e.OwnerID != ownerID {
			continue
		}
		if !e.Matches(scope) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ListAll returns every event in append order. Used by tests asserting
// audit completeness and by operational exports.
func (s *InMemoryStore) ListAll(_ context.Context) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events...), nil
}

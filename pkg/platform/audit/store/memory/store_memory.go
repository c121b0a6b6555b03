package memory

import (
	"context"
	"sync"

	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	audit "github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit"
)

// InMemoryStore keeps audit events in process memory. Test twin of the
// postgres outbox store.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.FiscalCode][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.FiscalCode][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.FiscalCode][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.FiscalCode] = append(s.events[event.FiscalCode], event)
	return nil
}

func (s *InMemoryStore) ListByFiscalCode(_ context.Context, fiscalCode id.FiscalCode) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[fiscalCode]...), nil
}

// ListAll returns all audit events across all citizens.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.Event
	for _, events := range s.events {
		all = append(all, events...)
	}
	return all, nil
}

package orchestration

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
)

// InMemoryStore is the in-process twin of the postgres instance store. Used
// in tests and local development.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	steps     map[string]map[string][]byte
	order     []string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[string]*Instance),
		steps:     make(map[string]map[string][]byte),
	}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (s *InMemoryStore) Create(_ context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.instances[inst.ID]; ok {
		if existing.Status.IsLive() {
			return sentinel.ErrConflict
		}
		// Terminal instance: reset for a fresh run.
		delete(s.steps, inst.ID)
	} else {
		s.order = append(s.order, inst.ID)
	}

	cp := *inst
	s.instances[inst.ID] = &cp
	return nil
}

func (s *InMemoryStore) SetStatus(_ context.Context, id string, status RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	inst.Status = status
	inst.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) RecordStep(_ context.Context, id, step string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[id]; !ok {
		return sentinel.ErrNotFound
	}
	if s.steps[id] == nil {
		s.steps[id] = make(map[string][]byte)
	}
	s.steps[id][step] = slices.Clone(result)
	return nil
}

func (s *InMemoryStore) CompletedSteps(_ context.Context, id string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.instances[id]; !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make(map[string][]byte, len(s.steps[id]))
	maps.Copy(out, s.steps[id])
	return out, nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, status RunStatus) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, id := range s.order {
		if s.instances[id].Status == status {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

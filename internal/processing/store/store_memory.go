package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pagopa/io-functions-admin-sub002/internal/processing/models"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
)

// InMemoryStore is the in-process twin of the postgres store. Used in tests
// and local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	versions map[id.ProcessingID][]*models.Request
	order    []id.ProcessingID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{versions: make(map[id.ProcessingID][]*models.Request)}
}

func (s *InMemoryStore) FindLastVersion(_ context.Context, processingID id.ProcessingID, fiscalCode id.FiscalCode) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.current(processingID)
	if current == nil || current.FiscalCode != fiscalCode {
		return nil, sentinel.ErrNotFound
	}
	cp := *current
	return &cp, nil
}

func (s *InMemoryStore) AppendVersion(_ context.Context, req *models.Request) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.versions[req.ProcessingID]
	for _, v := range existing {
		if v.Version == req.Version {
			return nil, sentinel.ErrConflict
		}
	}
	if len(existing) == 0 {
		s.order = append(s.order, req.ProcessingID)
	}

	cp := *req
	s.versions[req.ProcessingID] = append(existing, &cp)
	sort.Slice(s.versions[req.ProcessingID], func(i, j int) bool {
		return s.versions[req.ProcessingID][i].Version < s.versions[req.ProcessingID][j].Version
	})
	out := cp
	return &out, nil
}

func (s *InMemoryStore) FindAllFailed(_ context.Context) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var failed []*models.Request
	for _, pid := range s.order {
		current := s.current(pid)
		if current != nil && current.Status == id.StatusFailed {
			cp := *current
			failed = append(failed, &cp)
		}
	}
	return failed, nil
}

func (s *InMemoryStore) current(processingID id.ProcessingID) *models.Request {
	versions := s.versions[processingID]
	if len(versions) == 0 {
		return nil
	}
	return versions[len(versions)-1]
}

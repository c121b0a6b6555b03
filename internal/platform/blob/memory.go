package blob

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
)

// InMemoryStore implements Store with process-local state. Test twin of the
// redis store.
type InMemoryStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	leases map[string]lease

	// now is swappable so lease expiry is testable.
	now func() time.Time
}

type lease struct {
	id        string
	expiresAt time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		blobs:  make(map[string][]byte),
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

// SetClock overrides the store's clock for expiry tests.
func (s *InMemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *InMemoryStore) AcquireLease(_ context.Context, blobID string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[blobID]; ok && l.expiresAt.After(s.now()) {
		return "", sentinel.ErrLeaseHeld
	}
	leaseID := uuid.New().String()
	s.leases[blobID] = lease{id: leaseID, expiresAt: s.now().Add(ttl)}
	return leaseID, nil
}

func (s *InMemoryStore) ReleaseLease(_ context.Context, blobID, leaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[blobID]
	if !ok || !l.expiresAt.After(s.now()) {
		// Expired or never held: releasing is a no-op by contract.
		delete(s.leases, blobID)
		return nil
	}
	if l.id != leaseID {
		return sentinel.ErrLeaseHeld
	}
	delete(s.leases, blobID)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, blobID, leaseID string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLease(blobID, leaseID); err != nil {
		return nil, false, err
	}
	data, ok := s.blobs[blobID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, data...), true, nil
}

func (s *InMemoryStore) Put(_ context.Context, blobID string, data []byte, leaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLease(blobID, leaseID); err != nil {
		return err
	}
	s.blobs[blobID] = append([]byte{}, data...)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, blobID, leaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLease(blobID, leaseID); err != nil {
		return err
	}
	delete(s.blobs, blobID)
	return nil
}

// checkLease must be called while holding s.mu.
func (s *InMemoryStore) checkLease(blobID, leaseID string) error {
	l, ok := s.leases[blobID]
	if !ok || !l.expiresAt.After(s.now()) {
		if leaseID == "" {
			return nil
		}
		// Caller presents a lease that no longer exists: it expired under
		// them, so their view of the blob may be stale.
		return sentinel.ErrLeaseHeld
	}
	if l.id != leaseID {
		return sentinel.ErrLeaseHeld
	}
	return nil
}

package permission

import (
	"context"
	"sync"

	"github.com/codecoder/core/pkg/models"
)

// RequestStore persists pending/answered PermissionRequests.
type RequestStore interface {
	Create(ctx context.Context, req *models.PermissionRequest) error
	Get(ctx context.Context, id string) (*models.PermissionRequest, error)
	Update(ctx context.Context, req *models.PermissionRequest) error
	ListPending(ctx context.Context, sessionID string) ([]*models.PermissionRequest, error)
}

// MemoryRequestStore is a thread-safe in-memory RequestStore.
type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[string]*models.PermissionRequest
}

// NewMemoryRequestStore creates an empty in-memory request store.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[string]*models.PermissionRequest)}
}

func (s *MemoryRequestStore) Create(ctx context.Context, req *models.PermissionRequest) error {
	if req == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *MemoryRequestStore) Get(ctx context.Context, id string) (*models.PermissionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests[id], nil
}

func (s *MemoryRequestStore) Update(ctx context.Context, req *models.PermissionRequest) error {
	if req == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *MemoryRequestStore) ListPending(ctx context.Context, sessionID string) ([]*models.PermissionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*models.PermissionRequest
	for _, req := range s.requests {
		if req.Status != models.RequestPending {
			continue
		}
		if sessionID != "" && req.SessionID != sessionID {
			continue
		}
		result = append(result, req)
	}
	return result, nil
}

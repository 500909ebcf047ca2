package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/charity-drive/internal/models"
)

// MemoryStore keeps rides in a mutex-guarded map. It is the reference
// implementation of the conditional-transition semantics and the default
// when no Postgres DSN is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*models.RideRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.RideRequest)}
}

// cloneRide copies r including its pointer fields, so a snapshot handed
// out (or taken in) can never write through to stored state.
func cloneRide(r *models.RideRequest) *models.RideRequest {
	cp := *r
	if r.Assignment != nil {
		a := *r.Assignment
		cp.Assignment = &a
	}
	if r.Charity != nil {
		c := *r.Charity
		cp.Charity = &c
	}
	return &cp
}

func (m *MemoryStore) Create(ctx context.Context, r *models.RideRequest) error {
	if err := ValidateRide(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = cloneRide(r)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRide(r), nil
}

func (m *MemoryStore) ListPending(ctx context.Context) ([]*models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.RideRequest, 0)
	for _, r := range m.rides {
		if r.Status == models.StatusPending {
			out = append(out, cloneRide(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Accept(ctx context.Context, id string, a models.Assignment) (*models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != models.StatusPending {
		return nil, ErrConflict
	}
	r.Status = models.StatusAccepted
	cp := a
	r.Assignment = &cp
	r.UpdatedAt = time.Now().UTC()
	return cloneRide(r), nil
}

func (m *MemoryStore) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != models.StatusPending {
		return ErrConflict
	}
	r.Status = models.StatusCancelled
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) Start(ctx context.Context, id string) (*models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != models.StatusAccepted {
		return nil, ErrConflict
	}
	r.Status = models.StatusInProgress
	r.UpdatedAt = time.Now().UTC()
	return cloneRide(r), nil
}

func (m *MemoryStore) Complete(ctx context.Context, id string) (*models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	switch r.Status {
	case models.StatusCompleted:
		// idempotent
	case models.StatusAccepted, models.StatusInProgress:
		r.Status = models.StatusCompleted
		r.UpdatedAt = time.Now().UTC()
	default:
		return nil, ErrConflict
	}
	return cloneRide(r), nil
}

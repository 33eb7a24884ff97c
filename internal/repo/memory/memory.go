package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/servicepoller/internal/domain"
	"github.com/hamed0406/servicepoller/internal/repo"
)

type Store struct {
	mu        sync.RWMutex
	endpoints map[domain.EndpointID]domain.Endpoint
}

func New() *Store {
	return &Store{
		endpoints: make(map[domain.EndpointID]domain.Endpoint),
	}
}

func (m *Store) Create(ctx context.Context, e *domain.Endpoint) error {
	if err := ctx.Err(); err != nil {
		return &repo.StoreError{Op: "create", Err: err}
	}
	e.ID = domain.EndpointID(uuid.NewString())
	if e.Added.IsZero() {
		e.Added = time.Now().UTC()
	}
	if e.Name == "" {
		e.Name = domain.DefaultName
	}
	e.Status = domain.StatusUnknown

	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[e.ID] = *e
	return nil
}

// ListAll returns values, oldest first; callers cannot reach stored records.
func (m *Store) ListAll(ctx context.Context) ([]domain.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, &repo.StoreError{Op: "list", Err: err}
	}
	m.mu.RLock()
	out := make([]domain.Endpoint, 0, len(m.endpoints))
	for _, e := range m.endpoints {
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Added.Equal(out[j].Added) {
			return out[i].ID < out[j].ID
		}
		return out[i].Added.Before(out[j].Added)
	})
	return out, nil
}

func (m *Store) WriteStatus(ctx context.Context, id domain.EndpointID, status domain.Status) error {
	if err := ctx.Err(); err != nil {
		return &repo.StoreError{Op: "write_status", ID: id, Err: err}
	}
	if !status.Valid() {
		return &repo.StoreError{Op: "write_status", ID: id, Err: domain.ErrInvalidStatus}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.endpoints[id]
	if !ok {
		return &repo.StoreError{Op: "write_status", ID: id, Err: repo.ErrNotFound}
	}
	e.Status = status
	m.endpoints[id] = e
	return nil
}

func (m *Store) Delete(ctx context.Context, id domain.EndpointID) error {
	if err := ctx.Err(); err != nil {
		return &repo.StoreError{Op: "delete", ID: id, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.endpoints, id)
	return nil
}

func (m *Store) Close() error { return nil }

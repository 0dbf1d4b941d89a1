package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory Repository for development and testing.
type Memory struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]*Record
	now     func() time.Time
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[int64]*Record),
		now:     time.Now,
	}
}

// FindByRole returns the active record of a role.
func (m *Memory) FindByRole(ctx context.Context, role Role) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Record
	for _, r := range m.records {
		if r.Role != role || r.Status != StatusActive {
			continue
		}
		if best == nil || (r.IsDefault && !best.IsDefault) || (r.IsDefault == best.IsDefault && r.ID > best.ID) {
			best = r
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return copyRecord(best), nil
}

// ListByRole returns all records of a role ordered by ID.
func (m *Memory) ListByRole(ctx context.Context, role Role) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*Record{}
	for _, r := range m.records {
		if r.Role == role {
			result = append(result, copyRecord(r))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UpsertByNameAndRole stores a copy of rec.
func (m *Memory) UpsertByNameAndRole(ctx context.Context, rec *Record) (*Record, error) {
	if err := validate(rec); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	stored := copyRecord(rec)
	stored.UpdatedAt = now

	for id, r := range m.records {
		if r.Name == rec.Name && r.Role == rec.Role {
			stored.ID = id
			stored.CreatedAt = r.CreatedAt
			m.records[id] = stored
			return copyRecord(stored), nil
		}
	}

	m.nextID++
	stored.ID = m.nextID
	stored.CreatedAt = now
	m.records[stored.ID] = stored
	return copyRecord(stored), nil
}

// Get retrieves a record by ID.
func (m *Memory) Get(ctx context.Context, id int64) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(r), nil
}

// UpdateStatus changes the status of a record.
func (m *Memory) UpdateStatus(ctx context.Context, id int64, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = m.now().UTC()
	return nil
}

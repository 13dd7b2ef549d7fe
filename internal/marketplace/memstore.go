package marketplace

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-process listing Store for unit tests and database-less
// runs.
type MemStore struct {
	mu       sync.RWMutex
	listings map[string]*Listing
}

// NewMemStore creates an empty in-memory listing store.
func NewMemStore() *MemStore {
	return &MemStore{listings: make(map[string]*Listing)}
}

func (m *MemStore) CreateListing(_ context.Context, l *Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.listings[l.ListingID] = &cp
	return nil
}

func (m *MemStore) GetListing(_ context.Context, id string) (*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemStore) UpdateListing(_ context.Context, id string, title, description *string, price *uint64, deliveryTime *int64, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return ErrNotFound
	}
	if title != nil {
		l.Title = *title
	}
	if description != nil {
		l.Description = *description
	}
	if price != nil {
		l.Price = *price
	}
	if deliveryTime != nil {
		l.DeliveryTime = *deliveryTime
	}
	l.UpdatedAt = updatedAt
	return nil
}

func (m *MemStore) SetListingActive(_ context.Context, id string, active bool, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return ErrNotFound
	}
	l.IsActive = active
	l.UpdatedAt = updatedAt
	return nil
}

func (m *MemStore) ListListings(_ context.Context, activeOnly bool, serviceType int) ([]*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Listing, 0, len(m.listings))
	for _, l := range m.listings {
		if activeOnly && !l.IsActive {
			continue
		}
		if serviceType != 0 && l.ServiceType != serviceType {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

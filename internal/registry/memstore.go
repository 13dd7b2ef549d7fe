package registry

import (
	"context"
	"sync"
)

// MemStore is an in-process Store used by unit tests and when the service
// runs without PostgreSQL. A single mutex covers both maps, which serializes
// every mutation. Stricter than the per-identity contract requires, and
// plenty at this scale.
type MemStore struct {
	mu      sync.RWMutex
	agents  map[string]*Agent
	ledgers map[string][]Event
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		agents:  make(map[string]*Agent),
		ledgers: make(map[string][]Event),
	}
}

func (m *MemStore) CreateAgent(_ context.Context, a *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.AgentID]; ok {
		return ErrAlreadyRegistered
	}
	m.agents[a.AgentID] = cloneAgent(a)
	return nil
}

func (m *MemStore) GetAgent(_ context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAgent(a), nil
}

// cloneAgent copies the record and its slice fields so neither side can
// mutate the other's backing arrays.
func cloneAgent(a *Agent) *Agent {
	cp := *a
	cp.Capabilities = append([]string(nil), a.Capabilities...)
	cp.ServiceTypes = append([]int(nil), a.ServiceTypes...)
	return &cp
}

func (m *MemStore) UpdateAgentMetadata(_ context.Context, id string, name *string, capabilities *[]string, serviceTypes *[]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	if name != nil {
		a.Name = *name
	}
	if capabilities != nil {
		a.Capabilities = append([]string(nil), (*capabilities)...)
	}
	if serviceTypes != nil {
		a.ServiceTypes = append([]int(nil), (*serviceTypes)...)
	}
	return nil
}

func (m *MemStore) SetAgentActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = active
	return nil
}

func (m *MemStore) RecordOutcome(_ context.Context, id string, success bool, earned uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.TotalServices++
	if success {
		a.SuccessfulServices++
	}
	a.TotalEarned += earned
	return nil
}

// ApplyReputation updates the score and appends the event under one lock
// hold, so the record and the ledger never diverge.
func (m *MemStore) ApplyReputation(_ context.Context, id string, apply func(old int64) int64, ev Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return 0, ErrNotFound
	}
	newScore := apply(a.ReputationScore)

	ledger := m.ledgers[id]
	if len(ledger) >= MaxReputationEvents {
		// Evict the single oldest entry in place.
		n := copy(ledger, ledger[1:])
		ledger = ledger[:n]
	}
	ledger = append(ledger, ev)
	if len(ledger) > MaxReputationEvents {
		// Neither the score nor the ledger has been committed yet.
		return 0, ErrLedgerOverflow
	}

	a.ReputationScore = newScore
	m.ledgers[id] = ledger
	return newScore, nil
}

func (m *MemStore) History(_ context.Context, id string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.ledgers[id]...), nil
}

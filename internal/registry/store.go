package registry

import "context"

// Store is keyed storage for agent records and their reputation ledgers.
// Both resources share the identity key.
//
// ApplyReputation must behave as one atomic unit: read the latest committed
// score, persist the result of apply, and append ev, evicting the oldest
// event when the cap would be exceeded, with all of it committing together
// or not at all. Calls for the same identity must be serialized so a
// concurrent update is never lost.
type Store interface {
	CreateAgent(ctx context.Context, a *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	// UpdateAgentMetadata replaces only the provided fields; nil pointers
	// leave the stored value untouched.
	UpdateAgentMetadata(ctx context.Context, id string, name *string, capabilities *[]string, serviceTypes *[]int) error
	SetAgentActive(ctx context.Context, id string, active bool) error
	RecordOutcome(ctx context.Context, id string, success bool, earned uint64) error
	ApplyReputation(ctx context.Context, id string, apply func(old int64) int64, ev Event) (int64, error)
	// History returns the ledger oldest-first, empty when nothing was recorded.
	History(ctx context.Context, id string) ([]Event, error)
}

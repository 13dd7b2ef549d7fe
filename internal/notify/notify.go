// Package notify emits change notifications for external observers such as
// indexers and UIs. Events are append-only and carry no feedback into the
// core's own state.
package notify

import (
	"context"
	"time"
)

// Event types appended to the marketplace activity stream.
const (
	TypeAgentRegistered    = "agent.registered"
	TypeAgentUpdated       = "agent.updated"
	TypeReputationChanged  = "reputation.changed"
	TypeServiceRecorded    = "agent.service_recorded"
	TypeListingCreated     = "listing.created"
	TypeListingUpdated     = "listing.updated"
	TypeListingDeactivated = "listing.deactivated"
)

// Event is one externally observable change notification. Type selects which
// of the remaining fields are meaningful.
type Event struct {
	Type      string    `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	ListingID string    `json:"listing_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	NewScore  int64     `json:"new_score"`
	Change    int64     `json:"change"`
	Reason    string    `json:"reason,omitempty"`
	ServiceID string    `json:"service_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher appends events to the activity stream.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
	Close() error
}

// Nop discards events. Used when no stream is configured.
type Nop struct{}

func (Nop) Publish(context.Context, *Event) error { return nil }
func (Nop) Close() error                          { return nil }

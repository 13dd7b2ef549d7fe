// Package registry is the bookkeeping core of the marketplace: agent records,
// the bounded reputation ledger, and the rules for who may mutate what.
package registry

import (
	"context"
	"time"

	"github.com/kaldra/agora/internal/notify"
	"go.uber.org/zap"
)

// Service enforces the registry rules. The trusted authority set is injected
// at construction; the agent itself is never allowed to mutate its own score.
type Service struct {
	store       Store
	pub         notify.Publisher
	authorities map[string]struct{}
	now         func() time.Time
	logger      *zap.Logger
}

// New creates a registry service. authorities lists the caller identities
// permitted to apply reputation changes and record service outcomes.
func New(store Store, pub notify.Publisher, authorities []string, logger *zap.Logger) *Service {
	auth := make(map[string]struct{}, len(authorities))
	for _, a := range authorities {
		auth[a] = struct{}{}
	}
	return &Service{
		store:       store,
		pub:         pub,
		authorities: auth,
		now:         time.Now,
		logger:      logger,
	}
}

// Register creates the record for the caller's own identity. Self-registration
// only: the new record's identity is the caller. The record starts with zero
// score, zero counters, and active status.
func (s *Service) Register(ctx context.Context, caller, name string, capabilities []string, serviceTypes []int) (*Agent, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateCapabilities(capabilities); err != nil {
		return nil, err
	}
	if err := validateServiceTypes(serviceTypes); err != nil {
		return nil, err
	}

	a := &Agent{
		AgentID:          caller,
		Name:             name,
		Capabilities:     append([]string(nil), capabilities...),
		ServiceTypes:     append([]int(nil), serviceTypes...),
		RegistrationTime: s.now(),
		IsActive:         true,
	}
	if err := s.store.CreateAgent(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("agent registered",
		zap.String("agent_id", a.AgentID),
		zap.String("name", a.Name))
	s.publish(ctx, &notify.Event{
		Type:      notify.TypeAgentRegistered,
		AgentID:   a.AgentID,
		Name:      a.Name,
		Timestamp: a.RegistrationTime,
	})
	return a, nil
}

// UpdateMetadata replaces the provided fields on the caller's own record.
// Each provided field is revalidated with the registration rules; nil fields
// stay untouched.
func (s *Service) UpdateMetadata(ctx context.Context, caller, agentID string, name *string, capabilities *[]string, serviceTypes *[]int) error {
	a, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if caller != a.AgentID {
		return ErrUnauthorized
	}

	if name != nil {
		if err := validateName(*name); err != nil {
			return err
		}
	}
	if capabilities != nil {
		if err := validateCapabilities(*capabilities); err != nil {
			return err
		}
	}
	if serviceTypes != nil {
		if err := validateServiceTypes(*serviceTypes); err != nil {
			return err
		}
	}

	if err := s.store.UpdateAgentMetadata(ctx, agentID, name, capabilities, serviceTypes); err != nil {
		return err
	}
	s.publish(ctx, &notify.Event{
		Type:      notify.TypeAgentUpdated,
		AgentID:   agentID,
		Timestamp: s.now(),
	})
	return nil
}

// Get returns the record for an identity. Reads are unrestricted.
func (s *Service) Get(ctx context.Context, agentID string) (*Agent, error) {
	return s.store.GetAgent(ctx, agentID)
}

// SetActive flips the caller's own activity flag. Deactivation is a flag,
// never removal; the record and its ledger survive.
func (s *Service) SetActive(ctx context.Context, caller, agentID string, active bool) error {
	a, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if caller != a.AgentID {
		return ErrUnauthorized
	}
	if err := s.store.SetAgentActive(ctx, agentID, active); err != nil {
		return err
	}
	s.publish(ctx, &notify.Event{
		Type:      notify.TypeAgentUpdated,
		AgentID:   agentID,
		Timestamp: s.now(),
	})
	return nil
}

// ApplyChange applies a signed reputation delta for agentID on behalf of a
// trusted authority and returns the new score. The score saturates at both
// bounds; a delta past a bound is truncated, not rejected. The record update
// and the ledger append commit as one unit.
func (s *Service) ApplyChange(ctx context.Context, caller, agentID string, delta int64, reason Reason, serviceID string) (int64, error) {
	if _, ok := s.authorities[caller]; !ok || caller == agentID {
		return 0, ErrUnauthorized
	}
	if !reason.Valid() {
		return 0, ErrBadReason
	}

	ev := Event{
		Timestamp: s.now(),
		Change:    delta,
		Reason:    reason,
		ServiceID: serviceID,
	}
	newScore, err := s.store.ApplyReputation(ctx, agentID, func(old int64) int64 {
		return saturatingAdd(old, delta)
	}, ev)
	if err != nil {
		return 0, err
	}

	s.logger.Info("reputation changed",
		zap.String("agent_id", agentID),
		zap.Int64("delta", delta),
		zap.Int64("new_score", newScore),
		zap.String("reason", string(reason)))
	s.publish(ctx, &notify.Event{
		Type:      notify.TypeReputationChanged,
		AgentID:   agentID,
		NewScore:  newScore,
		Change:    delta,
		Reason:    string(reason),
		ServiceID: serviceID,
		Timestamp: ev.Timestamp,
	})
	return newScore, nil
}

// History returns the agent's ledger oldest-first. An identity with no
// recorded events yields an empty list; reads are unrestricted.
func (s *Service) History(ctx context.Context, agentID string) ([]Event, error) {
	return s.store.History(ctx, agentID)
}

// RecordServiceOutcome bumps the service counters for a completed engagement.
// Restricted to the trusted authority, same as score mutation.
func (s *Service) RecordServiceOutcome(ctx context.Context, caller, agentID string, success bool, earned uint64) error {
	if _, ok := s.authorities[caller]; !ok || caller == agentID {
		return ErrUnauthorized
	}
	if err := s.store.RecordOutcome(ctx, agentID, success, earned); err != nil {
		return err
	}
	s.publish(ctx, &notify.Event{
		Type:      notify.TypeServiceRecorded,
		AgentID:   agentID,
		Timestamp: s.now(),
	})
	return nil
}

// publish emits a notification after the state change committed. Publish
// failures are logged, never propagated: the stream is observability, not
// state.
func (s *Service) publish(ctx context.Context, ev *notify.Event) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("type", ev.Type),
			zap.Error(err))
	}
}

// saturatingAdd adds delta to score and clamps the result to the score
// bounds, guarding against int64 wraparound for extreme deltas.
func saturatingAdd(score, delta int64) int64 {
	sum := score + delta
	if delta > 0 && sum < score {
		return MaxScore
	}
	if delta < 0 && sum > score {
		return MinScore
	}
	if sum < MinScore {
		return MinScore
	}
	if sum > MaxScore {
		return MaxScore
	}
	return sum
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kaldra/agora/internal/registry"
)

// CreateAgent inserts a new agent record. The identity is the primary key,
// so duplicate registration fails without touching the first record.
func (s *Store) CreateAgent(ctx context.Context, a *registry.Agent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO agents (agent_id, name, capabilities, service_types,
		                    reputation_score, total_services, successful_services,
		                    total_earned, registration_time, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.AgentID, a.Name, a.Capabilities, toInt32s(a.ServiceTypes),
		a.ReputationScore, int64(a.TotalServices), int64(a.SuccessfulServices),
		int64(a.TotalEarned), a.RegistrationTime, a.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return registry.ErrAlreadyRegistered
		}
		return fmt.Errorf("create agent %s: %w", a.AgentID, err)
	}
	return nil
}

// GetAgent retrieves a single agent record by identity.
func (s *Store) GetAgent(ctx context.Context, id string) (*registry.Agent, error) {
	row := s.db.QueryRow(ctx, `
		SELECT agent_id, name, capabilities, service_types,
		       reputation_score, total_services, successful_services,
		       total_earned, registration_time, is_active
		FROM agents WHERE agent_id = $1`, id)

	var (
		a            registry.Agent
		serviceTypes []int32
		totalSvc     int64
		successSvc   int64
		totalEarned  int64
	)
	err := row.Scan(
		&a.AgentID, &a.Name, &a.Capabilities, &serviceTypes,
		&a.ReputationScore, &totalSvc, &successSvc,
		&totalEarned, &a.RegistrationTime, &a.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	a.ServiceTypes = fromInt32s(serviceTypes)
	a.TotalServices = uint64(totalSvc)
	a.SuccessfulServices = uint64(successSvc)
	a.TotalEarned = uint64(totalEarned)
	return &a, nil
}

// UpdateAgentMetadata replaces only the provided fields; nil pointers leave
// the stored value untouched.
func (s *Store) UpdateAgentMetadata(ctx context.Context, id string, name *string, capabilities *[]string, serviceTypes *[]int) error {
	var caps *[]string
	if capabilities != nil {
		c := append([]string(nil), (*capabilities)...)
		caps = &c
	}
	var types *[]int32
	if serviceTypes != nil {
		t := toInt32s(*serviceTypes)
		types = &t
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE agents SET
			name = COALESCE($2, name),
			capabilities = COALESCE($3, capabilities),
			service_types = COALESCE($4, service_types)
		WHERE agent_id = $1`,
		id, name, caps, types,
	)
	if err != nil {
		return fmt.Errorf("update agent %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// SetAgentActive flips the activity flag. The record is never deleted.
func (s *Store) SetAgentActive(ctx context.Context, id string, active bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE agents SET is_active = $2 WHERE agent_id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set agent %s active: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// RecordOutcome bumps the service counters in a single statement.
func (s *Store) RecordOutcome(ctx context.Context, id string, success bool, earned uint64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE agents SET
			total_services = total_services + 1,
			successful_services = successful_services + CASE WHEN $2 THEN 1 ELSE 0 END,
			total_earned = total_earned + $3
		WHERE agent_id = $1`,
		id, success, int64(earned),
	)
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func toInt32s(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func fromInt32s(in []int32) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kaldra/agora/internal/registry"
)

// ApplyReputation updates the agent's score and appends the event inside one
// transaction. The row lock taken by FOR UPDATE serializes concurrent calls
// for the same identity, so apply always sees the latest committed score.
// Eviction keeps only the newest MaxReputationEvents rows per agent.
func (s *Store) ApplyReputation(ctx context.Context, id string, apply func(old int64) int64, ev registry.Event) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin reputation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var old int64
	err = tx.QueryRow(ctx,
		`SELECT reputation_score FROM agents WHERE agent_id = $1 FOR UPDATE`, id,
	).Scan(&old)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, registry.ErrNotFound
		}
		return 0, fmt.Errorf("lock agent %s: %w", id, err)
	}

	newScore := apply(old)
	if _, err := tx.Exec(ctx,
		`UPDATE agents SET reputation_score = $2 WHERE agent_id = $1`, id, newScore,
	); err != nil {
		return 0, fmt.Errorf("update score for %s: %w", id, err)
	}

	var serviceID any
	if ev.ServiceID != "" {
		serviceID = ev.ServiceID
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO reputation_events (agent_id, ts, change, reason, service_id)
		VALUES ($1, $2, $3, $4, $5)`,
		id, ev.Timestamp, ev.Change, string(ev.Reason), serviceID,
	); err != nil {
		return 0, fmt.Errorf("append event for %s: %w", id, err)
	}

	// FIFO eviction by insertion order: drop everything at or below the
	// sequence number sitting just past the cap.
	if _, err := tx.Exec(ctx, `
		DELETE FROM reputation_events
		WHERE agent_id = $1 AND seq <= (
			SELECT seq FROM reputation_events
			WHERE agent_id = $1
			ORDER BY seq DESC
			OFFSET $2 LIMIT 1
		)`,
		id, registry.MaxReputationEvents,
	); err != nil {
		return 0, fmt.Errorf("evict events for %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit reputation tx: %w", err)
	}
	return newScore, nil
}

// History returns the agent's reputation events oldest-first.
func (s *Store) History(ctx context.Context, id string) ([]registry.Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ts, change, reason, COALESCE(service_id, '')
		FROM reputation_events
		WHERE agent_id = $1
		ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", id, err)
	}
	defer rows.Close()

	events := []registry.Event{}
	for rows.Next() {
		var (
			e      registry.Event
			reason string
		)
		if err := rows.Scan(&e.Timestamp, &e.Change, &reason, &e.ServiceID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Reason = registry.Reason(reason)
		events = append(events, e)
	}
	return events, rows.Err()
}

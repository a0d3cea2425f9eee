// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// UpdateAgentUserID binds a session to a user
func (s *Store) UpdateAgentUserID(ctx context.Context, sessionID, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agent_sessions SET user_id = $1, updated_at = now() WHERE session_id = $2`,
		userID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent session user: %w", err)
	}
	return nil
}

// UpdateAgentState stores the serialized agent state for a session,
// rebinding the user at the same time.
func (s *Store) UpdateAgentState(ctx context.Context, sessionID uuid.UUID, state string, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_sessions
		SET state = $2, updated_at = now(), user_id = $3
		WHERE session_id = $1`,
		sessionID, state, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent state: %w", err)
	}
	return nil
}

// GetAgentState returns the serialized agent state for a session.
// Two kinds of absence collapse to nil: no such session, and a session
// whose state column is NULL.
func (s *Store) GetAgentState(ctx context.Context, sessionID uuid.UUID) (*string, error) {
	var state sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM agent_sessions WHERE session_id = $1`,
		sessionID,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent state: %w", err)
	}

	if !state.Valid {
		return nil, nil
	}
	return &state.String, nil
}

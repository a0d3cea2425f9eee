// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType classifies an agent session message
type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeStep      MessageType = "step"
	MessageTypeAssistant MessageType = "assistant"
)

// InsertAgentMessage records one message in a session's transcript and
// touches the session's updated_at so session listings sort by recency.
func (s *Store) InsertAgentMessage(
	ctx context.Context,
	id uuid.UUID,
	sessionID uuid.UUID,
	userID uuid.UUID,
	messageType MessageType,
	content json.RawMessage,
	createdAt time.Time,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_messages (id, session_id, user_id, message_type, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, sessionID, userID, string(messageType), content, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert agent message: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE agent_sessions SET updated_at = now() WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch agent session: %w", err)
	}

	return nil
}

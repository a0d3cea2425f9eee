// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewStore(conn, testKeyHex()), mock
}

// TestInsertAgentMessage tests the insert plus the session touch
func TestInsertAgentMessage(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	sessionID := uuid.New()
	userID := uuid.New()
	content := json.RawMessage(`{"text": "hello"}`)
	createdAt := time.Now().UTC()

	mock.ExpectExec("INSERT INTO agent_messages").
		WithArgs(id, sessionID, userID, "assistant", []byte(content), createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE agent_sessions SET updated_at").
		WithArgs(sessionID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.InsertAgentMessage(context.Background(), id, sessionID, userID, MessageTypeAssistant, content, createdAt)
	if err != nil {
		t.Fatalf("InsertAgentMessage: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// TestUpdateAgentState tests the state write with user rebinding
func TestUpdateAgentState(t *testing.T) {
	store, mock := newMockStore(t)

	sessionID := uuid.New()
	userID := uuid.New()

	mock.ExpectExec("UPDATE\\s+agent_sessions").
		WithArgs(sessionID, `{"step": 3}`, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateAgentState(context.Background(), sessionID, `{"step": 3}`, userID); err != nil {
		t.Fatalf("UpdateAgentState: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// TestGetAgentState tests the two absence shapes and the present case
func TestGetAgentState(t *testing.T) {
	sessionID := uuid.New()

	t.Run("no such session", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT state FROM agent_sessions").
			WithArgs(sessionID).
			WillReturnError(sql.ErrNoRows)

		state, err := store.GetAgentState(context.Background(), sessionID)
		if err != nil {
			t.Fatalf("GetAgentState: %v", err)
		}
		if state != nil {
			t.Errorf("state = %q, want nil", *state)
		}
	})

	t.Run("null state column", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT state FROM agent_sessions").
			WithArgs(sessionID).
			WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(nil))

		state, err := store.GetAgentState(context.Background(), sessionID)
		if err != nil {
			t.Fatalf("GetAgentState: %v", err)
		}
		if state != nil {
			t.Errorf("state = %q, want nil", *state)
		}
	})

	t.Run("state present", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT state FROM agent_sessions").
			WithArgs(sessionID).
			WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(`{"step": 1}`))

		state, err := store.GetAgentState(context.Background(), sessionID)
		if err != nil {
			t.Fatalf("GetAgentState: %v", err)
		}
		if state == nil || *state != `{"step": 1}` {
			t.Errorf("state = %v, want {\"step\": 1}", state)
		}
	})
}

// TestStorageStateRoundTripThroughStore tests that what the store
// writes it can read back and decrypt
func TestStorageStateRoundTripThroughStore(t *testing.T) {
	store, mock := newMockStore(t)

	userID := uuid.New()
	plaintext := `{"origins": []}`

	mock.ExpectExec("INSERT INTO user_storage_states").
		WithArgs(userID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.InsertStorageState(context.Background(), userID, plaintext); err != nil {
		t.Fatalf("InsertStorageState: %v", err)
	}

	// Seal independently to script the read side; the store must be
	// able to open anything sealed under its key.
	sealedCookie, sealedNonce, err := Seal(store.aeadKey, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	mock.ExpectQuery("SELECT cookies, nonce FROM user_storage_states").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"cookies", "nonce"}).
			AddRow(fmt.Sprintf("{%s}", sealedCookie), fmt.Sprintf("{%s}", sealedNonce)))

	state, err := store.GetStorageState(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetStorageState: %v", err)
	}
	if state == nil || *state != plaintext {
		t.Errorf("state = %v, want %q", state, plaintext)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// TestGetStorageStateAbsent tests the no-rows case
func TestGetStorageStateAbsent(t *testing.T) {
	store, mock := newMockStore(t)
	userID := uuid.New()

	mock.ExpectQuery("SELECT cookies, nonce FROM user_storage_states").
		WithArgs(userID).
		WillReturnError(sql.ErrNoRows)

	state, err := store.GetStorageState(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetStorageState: %v", err)
	}
	if state != nil {
		t.Errorf("state = %q, want nil", *state)
	}
}

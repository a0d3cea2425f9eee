// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package db holds the runner service's PostgreSQL persistence: agent
// session messages, session state, and sealed browser storage states.
package db

import (
	"database/sql"

	_ "github.com/lib/pq" // postgres driver
)

// Store wraps the database handle for all runner persistence. aeadKey
// is the hex-encoded storage-state sealing key.
type Store struct {
	db      *sql.DB
	aeadKey string
}

// NewStore creates a store over an existing database handle
func NewStore(db *sql.DB, aeadKeyHex string) *Store {
	return &Store{db: db, aeadKey: aeadKeyHex}
}

// OpenDB connects to PostgreSQL and verifies the connection
func OpenDB(databaseURL, aeadKeyHex string) (*Store, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		return nil, err
	}
	return NewStore(conn, aeadKeyHex), nil
}

// DB exposes the underlying handle for sharing with other repositories
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/chacha20poly1305"
)

// EnvAEADSecretKey names the env variable carrying the hex-encoded
// 32-byte storage-state sealing key.
const EnvAEADSecretKey = "AEAD_SECRET_KEY"

// Seal encrypts a storage state with XChaCha20-Poly1305 under the
// hex-encoded key, returning hex-encoded ciphertext and nonce. Pure
// function: no I/O, a fresh random nonce per call.
func Seal(keyHex, plaintext string) (cipherHex, nonceHex string, err error) {
	aead, err := newAEAD(keyHex)
	if err != nil {
		return "", "", err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), hex.EncodeToString(nonce), nil
}

// Open decrypts a sealed storage state. Fails on any tampering with
// the ciphertext or nonce.
func Open(keyHex, cipherHex, nonceHex string) (string, error) {
	aead, err := newAEAD(keyHex)
	if err != nil {
		return "", err
	}

	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex value for cookie: %w", err)
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex nonce for cookie: %w", err)
	}
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("invalid nonce length %d", len(nonce))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt cookie: %w", err)
	}

	return string(plaintext), nil
}

func newAEAD(keyHex string) (aead interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}, err error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode AEAD key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("AEAD key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return chacha20poly1305.NewX(key)
}

// InsertStorageState seals and stores a browser storage state for a user
func (s *Store) InsertStorageState(ctx context.Context, userID uuid.UUID, storageState string) error {
	cipherHex, nonceHex, err := Seal(s.aeadKey, storageState)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_storage_states (user_id, cookies, nonce)
		VALUES ($1, $2, $3)`,
		userID, pq.Array([]string{cipherHex}), pq.Array([]string{nonceHex}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert storage state: %w", err)
	}

	return nil
}

// GetStorageState returns the newest storage state for a user,
// decrypted, or nil when none is stored.
func (s *Store) GetStorageState(ctx context.Context, userID uuid.UUID) (*string, error) {
	var cookies, nonces []string

	err := s.db.QueryRowContext(ctx, `
		SELECT cookies, nonce FROM user_storage_states
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		userID,
	).Scan(pq.Array(&cookies), pq.Array(&nonces))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storage state: %w", err)
	}

	if len(cookies) == 0 || len(nonces) == 0 {
		return nil, nil
	}

	state, err := Open(s.aeadKey, cookies[0], nonces[0])
	if err != nil {
		return nil, err
	}

	return &state, nil
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package runner

import (
	"errors"
	"fmt"
)

// Sentinel errors for caller-side faults.
var (
	// ErrInvalidModelFormat indicates a malformed model identifier.
	// Always a caller bug, never retried.
	ErrInvalidModelFormat = errors.New(`invalid model format, expected "provider:model"`)

	// ErrSinkClosed indicates the streaming consumer went away while
	// chunks were still being produced. Chunks already delivered stand.
	ErrSinkClosed = errors.New("stream consumer is gone")
)

// UnknownProviderError indicates a provider tag outside the supported set
type UnknownProviderError struct {
	Tag string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown language model provider: %q", e.Tag)
}

// MissingCredentialError indicates the env snapshot lacks a variable the
// selected provider requires. A configuration fault, surfaced to the
// operator rather than retried.
type MissingCredentialError struct {
	Provider ProviderName
	Var      string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s: env variables don't contain %s", e.Provider, e.Var)
}

// BackendUnavailableError indicates a transport-level failure reaching
// the provider. May be retried by a policy above this layer.
type BackendUnavailableError struct {
	Provider ProviderName
	Cause    error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Provider, e.Cause)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Cause
}

// BackendRejectedError indicates a structured provider-side refusal
// (invalid params, quota, content filtering). Surfaced verbatim, not
// retried.
type BackendRejectedError struct {
	Provider   ProviderName
	StatusCode int
	Code       string
	Message    string
}

func (e *BackendRejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s rejected request (status %d, %s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s rejected request (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package runner executes chat-completion calls against a closed set of
// language model providers. A caller hands it a model identifier of the
// form "provider:model", a conversation, a free-form parameter bag, and
// a per-call credential snapshot; the runner resolves the provider,
// dispatches to the matching backend executor, and returns the completed
// response. Streaming calls additionally deliver partial output chunks
// on a caller-owned channel while the provider call is in flight.
//
// The provider set is fixed at build time. The runner holds exactly one
// executor per provider, registered at startup and read-only afterwards,
// so concurrent calls need no locking on the dispatch path.
package runner

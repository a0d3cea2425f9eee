// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package runner

import "strings"

// SplitModel splits a model identifier of the form "provider:model" on
// the first separator. The model portion is returned verbatim and may
// itself contain further separators (e.g. "bedrock:anthropic.claude-3:v1"
// splits into "bedrock" and "anthropic.claude-3:v1"). Identifiers with
// no separator or an empty model portion are rejected before any backend
// lookup happens.
func SplitModel(identifier string) (providerTag, modelName string, err error) {
	tag, model, found := strings.Cut(identifier, ":")
	if !found {
		return "", "", ErrInvalidModelFormat
	}
	if strings.TrimSpace(model) == "" {
		return "", "", ErrInvalidModelFormat
	}
	return tag, model, nil
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package logger provides structured JSON logging shared across the
// model runner service. Every entry carries the component name, the
// deployment instance id, and an optional request id so log lines can
// be correlated with individual runner invocations.
package logger

// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point for the AxonFlow Model Runner service.
//
// The Model Runner executes chat completions against seven language
// model providers (Anthropic, Mistral, OpenAI, Azure OpenAI, Gemini,
// Groq, AWS Bedrock) behind one normalized interface:
// - Parses "provider:model" identifiers and dispatches to the backend
// - Streams partial output over SSE with bounded buffering
// - Estimates per-call cost from a cached pricing store
// - Proxies agent runs to the agent-manager service
//
// Usage:
//
//	./runner
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string (required)
//	REDIS_ADDR - Redis address for the pricing cache (optional)
//	AGENT_MANAGER_URL - agent-manager endpoint (optional)
//	AEAD_SECRET_KEY - hex key for sealed storage states
//
// Provider credentials are not read from the process environment; they
// arrive per request in the execution env snapshot.
//
// For more information, see https://docs.getaxonflow.com
package main

import (
	"axonflow/modelrunner/server"
)

func main() {
	server.Run()
}

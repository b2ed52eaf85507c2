// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for the Ollama model catalog.
//
// Only the read side of the API is used: a health check, the list of
// installed models (/api/tags) and per-model details (/api/show). The client
// is the production model.Fetcher.
//
// # Key Types
//
//   - Client: HTTP client for the Ollama API
//   - ModelInfo: One installed model as reported by /api/tags
//   - ClientError: Typed failure (not running, timeout, not found)
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: url})
//	registry := model.NewRegistry(client)
//	names := registry.ListAvailable(ctx)
package ollama

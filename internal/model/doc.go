// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions and messages.
//
// This package defines the core domain types shared by the session store and
// the tab controller: chat sessions, their message logs, the catalog of
// selectable models and the error taxonomy.
//
// # Key Types
//
//   - Session: One chat conversation with its model choice and history
//   - Log: Ordered, append-only message history of a session
//   - Message: Single turn with a role and content
//   - Role: Message author (user or assistant)
//   - Registry: Catalog of selectable models and per-session selection
//   - Error: Typed error (not found, invalid model, corrupt, backend unavailable)
//
// # Usage
//
// Create a session and append a turn:
//
//	s := model.NewSession(model.NewID(), model.DefaultTitle)
//	s.Log().Append(model.RoleUser, "Hello!")
//
// Choose a model from the catalog:
//
//	reg := model.NewRegistry(ollamaClient)
//	names := reg.ListAvailable(ctx)
//	if err := reg.Select(s, "llama3"); model.IsInvalidModel(err) {
//	    // catalog changed since it was listed
//	}
package model

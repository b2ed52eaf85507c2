// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session persistence for desktollama.
//
// Sessions are stored as JSON records in a key-value Backend under the key
// "<namespace>.<id>". Three backends are available: an in-memory map, a
// directory of atomically written files and a SQLite table.
//
// # Key Types
//
//   - Backend: Key-value capability with atomic single-key overwrite
//   - SessionStore: Save, load, delete and enumerate sessions
//   - LoadResult: Sessions recovered at startup plus the count dropped
//   - Summary: Lightweight listing entry
//
// # Usage
//
// Open a backend and load everything:
//
//	backend, err := storage.Open(storage.Options{Kind: "sqlite", Path: dbPath})
//	store := storage.NewSessionStore(backend)
//	result, err := store.LoadAll(ctx)
//
// Persist a session after changing it:
//
//	err := store.Save(ctx, sess)
//
// # Record Format
//
//	{"modelId":"llama3","messages":[{"role":"user","content":"hello"}]}
//
// The tab title is not part of the record; loaded sessions are titled
// "New Chat".
package storage

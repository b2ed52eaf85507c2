// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the tab lifecycle controller.
//
// The controller owns the ordered collection of chat sessions shown as tabs,
// with a fixed settings entry at index 0, and the currently selected index.
// Every mutation goes through it and is persisted before it returns; a
// failed write leaves the collection and selection as they were.
//
// # Key Types
//
//   - Controller: Collection owner and the only entry point for a front end
//   - Store: Persistence capability (storage.SessionStore)
//   - Catalog: Model catalog capability (model.Registry)
//
// # Usage
//
// Wire the controller and restore the previous run:
//
//	ctrl := session.NewController(store, registry, session.WithLogger(logger))
//	dropped, err := ctrl.Initialize(ctx)
//
// Open a tab, pick a model and send a message:
//
//	s, err := ctrl.CreateSession(ctx)
//	err = ctrl.SelectModel(ctx, s.ID, "llama3")
//	msg, ok, err := ctrl.SubmitMessage(ctx, s.ID, "hello")
package session

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions and messages.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
)

const (
	// DefaultTitle is given to every new session and to sessions restored
	// from storage, since titles are not persisted.
	DefaultTitle = "New Chat"

	// Unselected is the ModelID of a session that has no model chosen yet.
	Unselected = ""

	// LabelWidth is the display width tab labels are shortened to.
	LabelWidth = 20
)

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session is one independent chat conversation bound to a model.
type Session struct {
	// ID is stable for the session's lifetime and doubles as its storage key.
	ID string

	// Title is a short display label, not necessarily unique.
	Title string

	// ModelID is the chosen model or Unselected.
	ModelID string

	log *Log
}

// NewSession creates an empty session with the given id and title.
func NewSession(id, title string) *Session {
	return &Session{
		ID:      id,
		Title:   title,
		ModelID: Unselected,
		log:     &Log{},
	}
}

// RestoreSession rebuilds a session from persisted state.
func RestoreSession(id, modelID string, msgs []Message) *Session {
	s := NewSession(id, DefaultTitle)
	s.ModelID = modelID
	s.log = NewLog(msgs...)
	return s
}

// Log returns the session's message log.
func (s *Session) Log() *Log {
	if s.log == nil {
		s.log = &Log{}
	}
	return s.log
}

// Messages returns a copy of the session history.
func (s *Session) Messages() []Message {
	return s.Log().All()
}

// HasModel reports whether a model has been chosen.
func (s *Session) HasModel() bool {
	return s.ModelID != Unselected
}

// Clone returns a deep copy under a new id and title. Mutating either
// session afterwards never affects the other.
func (s *Session) Clone(id, title string) *Session {
	return &Session{
		ID:      id,
		Title:   title,
		ModelID: s.ModelID,
		log:     s.Log().Clone(),
	}
}

// Label returns the title shortened to LabelWidth display columns.
func (s *Session) Label() string {
	return runewidth.Truncate(s.Title, LabelWidth, "...")
}

// CreatedAt returns the creation time encoded in a time-ordered id.
// It is the zero time for ids that do not carry a timestamp.
func (s *Session) CreatedAt() time.Time {
	u, err := uuid.Parse(s.ID)
	if err != nil || u.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}

// =============================================================================
// IDS
// =============================================================================

// NewID mints a session id. Ids are UUIDv7 strings, so sorting them
// lexicographically orders sessions by creation time.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

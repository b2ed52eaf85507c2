// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions and messages.
package model

import (
	"strings"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the two accepted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one chat turn. Messages are handed out by value; the log that
// holds them never exposes its backing storage.
type Message struct {
	Role    Role
	Content string
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// MESSAGE LOG
// =============================================================================

// Log is the ordered, append-only history of one session.
// The zero value is an empty log ready to use.
type Log struct {
	messages []Message
}

// NewLog returns a log holding copies of msgs in order.
func NewLog(msgs ...Message) *Log {
	l := &Log{messages: make([]Message, 0, len(msgs))}
	l.messages = append(l.messages, msgs...)
	return l
}

// Append adds a message and returns it with true.
// Blank content (empty or whitespace only) and invalid roles are ignored:
// nothing is appended and false is returned.
func (l *Log) Append(role Role, content string) (Message, bool) {
	if !role.Valid() || strings.TrimSpace(content) == "" {
		return Message{}, false
	}
	msg := Message{Role: role, Content: content}
	l.messages = append(l.messages, msg)
	return msg, true
}

// All returns a copy of every message in order. Later appends are visible
// on the next call, never through a previously returned slice.
func (l *Log) All() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	return len(l.messages)
}

// Last returns the most recent message, if any.
func (l *Log) Last() (Message, bool) {
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// Clone returns an independent copy of the log.
func (l *Log) Clone() *Log {
	return NewLog(l.messages...)
}

// Rollback discards entries appended after the log had length n.
// It exists so a caller can undo an append that could not be made durable.
func (l *Log) Rollback(n int) {
	if n < 0 || n >= len(l.messages) {
		return
	}
	clear(l.messages[n:])
	l.messages = l.messages[:n]
}

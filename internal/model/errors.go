// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions and messages.
package model

import (
	"errors"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind categorizes session errors for handling.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindInvalidModel
	KindCorrupt
	KindBackendUnavailable
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalidModel:
		return "invalid model"
	case KindCorrupt:
		return "corrupt record"
	case KindBackendUnavailable:
		return "backend unavailable"
	default:
		return "unknown error"
	}
}

// Error is the error type shared by the registry, the session store and the
// controller. Two errors match under errors.Is when their kinds match.
type Error struct {
	Kind ErrorKind
	Op   string // operation that failed, e.g. "load"
	ID   string // session or model id involved, if any
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ID != "" {
		msg += " (" + e.ID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support by comparing kinds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors for easy checking.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidModel       = &Error{Kind: KindInvalidModel}
	ErrCorrupt            = &Error{Kind: KindCorrupt}
	ErrBackendUnavailable = &Error{Kind: KindBackendUnavailable}
)

// NotFound returns a not-found error for id.
func NotFound(op, id string) error {
	return &Error{Kind: KindNotFound, Op: op, ID: id}
}

// Corrupt returns a corrupt-record error for id.
func Corrupt(op, id string, cause error) error {
	return &Error{Kind: KindCorrupt, Op: op, ID: id, Err: cause}
}

// BackendUnavailable wraps a collaborator failure.
func BackendUnavailable(op string, cause error) error {
	return &Error{Kind: KindBackendUnavailable, Op: op, Err: cause}
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidModel checks if an error is an invalid-model error.
func IsInvalidModel(err error) bool {
	return errors.Is(err, ErrInvalidModel)
}

// IsCorrupt checks if an error is a corrupt-record error.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}

// IsBackendUnavailable checks if an error is a backend failure.
func IsBackendUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

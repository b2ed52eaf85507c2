// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// BACKEND INTERFACE
// =============================================================================

// Backend is the key-value capability the session store persists through.
//
// Implementations must make Set an atomic overwrite of a single key: a
// concurrent or crashed reader sees either the old value or the new one,
// never a partial write.
type Backend interface {
	// Get returns the value at key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// ListKeys returns every key starting with prefix in ascending order.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Backend kinds accepted by Open.
const (
	KindMemory = "memory"
	KindFile   = "file"
	KindSQLite = "sqlite"
)

// ErrEmptyKey is returned when a backend is asked to operate on "".
var ErrEmptyKey = errors.New("empty key")

// Options selects and locates a backend.
type Options struct {
	// Kind is one of "memory", "file" or "sqlite".
	Kind string

	// Path is the directory (file) or database file (sqlite).
	// Ignored for memory.
	Path string
}

// Open creates the backend described by opts.
func Open(opts Options) (Backend, error) {
	switch strings.ToLower(opts.Kind) {
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindFile:
		if opts.Path == "" {
			return nil, errors.New("file backend requires a path")
		}
		return NewFileBackend(expandHome(opts.Path))
	case KindSQLite, "":
		if opts.Path == "" {
			return nil, errors.New("sqlite backend requires a path")
		}
		return NewSQLiteBackend(expandHome(opts.Path))
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want memory, file or sqlite)", opts.Kind)
	}
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

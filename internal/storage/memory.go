// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrInjected is returned by a MemoryBackend whose fault hooks are armed.
var ErrInjected = errors.New("injected storage failure")

// MemoryBackend keeps values in a map. Nothing survives the process; it
// backs tests and the "memory" storage mode.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte

	failWrites bool
	failReads  bool
}

// FailWrites makes Set and Remove return ErrInjected while on is true.
func (m *MemoryBackend) FailWrites(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = on
}

// FailReads makes Get and ListKeys return ErrInjected while on is true.
func (m *MemoryBackend) FailReads(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = on
}

// Len returns the number of stored keys.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string][]byte)}
}

// Get implements Backend.
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failReads {
		return nil, false, ErrInjected
	}

	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	v := append([]byte(nil), value...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return ErrInjected
	}
	m.values[key] = v
	return nil
}

// Remove implements Backend.
func (m *MemoryBackend) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return ErrInjected
	}
	delete(m.values, key)
	return nil
}

// ListKeys implements Backend.
func (m *MemoryBackend) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failReads {
		return nil, ErrInjected
	}

	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions and messages.
package model

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Fetcher lists the model identifiers the inference backend can serve.
type Fetcher interface {
	FetchAvailableModels(ctx context.Context) ([]string, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]string, error)

// FetchAvailableModels calls f.
func (f FetcherFunc) FetchAvailableModels(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// Registry tracks the catalog of selectable models. A model can only be
// selected if it appeared in the last successful fetch.
//
// The Registry is safe for concurrent use.
type Registry struct {
	fetcher Fetcher
	logger  *log.Logger

	mu      sync.RWMutex
	catalog []string // sorted, deduplicated
	fetched bool     // at least one fetch succeeded

	group   singleflight.Group
	limiter *rate.Limiter
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for fetch failures.
func WithRegistryLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRefreshInterval limits catalog fetches to one per interval. While
// throttled, ListAvailable answers from the last successful catalog.
// Zero disables throttling.
func WithRefreshInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// NewRegistry creates a registry backed by fetcher.
func NewRegistry(fetcher Fetcher, opts ...RegistryOption) *Registry {
	r := &Registry{
		fetcher: fetcher,
		logger:  log.New(io.Discard),
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListAvailable fetches the catalog and returns it sorted ascending without
// duplicates. A failed fetch yields an empty slice; the previous catalog is
// kept for Select.
func (r *Registry) ListAvailable(ctx context.Context) []string {
	if r.fetcher == nil {
		return []string{}
	}

	allowed := r.limiter.Allow()
	r.mu.RLock()
	fetched := r.fetched
	r.mu.RUnlock()
	if fetched && !allowed {
		return r.Catalog()
	}

	v, err, _ := r.group.Do("catalog", func() (interface{}, error) {
		names, err := r.fetcher.FetchAvailableModels(ctx)
		if err != nil {
			return nil, err
		}
		return normalizeCatalog(names), nil
	})
	if err != nil {
		r.logger.Warn("model catalog unavailable", "err", err)
		return []string{}
	}

	catalog := v.([]string)
	r.mu.Lock()
	r.catalog = catalog
	r.fetched = true
	r.mu.Unlock()

	return append([]string{}, catalog...)
}

// Catalog returns a copy of the last successfully fetched catalog.
func (r *Registry) Catalog() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.catalog...)
}

// Contains reports whether modelID is in the last successful catalog.
func (r *Registry) Contains(modelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := slices.BinarySearch(r.catalog, modelID)
	return ok
}

// Select sets the session's model if modelID is in the catalog. Otherwise
// the session is left untouched and ErrInvalidModel is returned.
// A selected model is kept even if it later disappears from the catalog.
func (r *Registry) Select(s *Session, modelID string) error {
	if !r.Contains(modelID) {
		return &Error{Kind: KindInvalidModel, Op: "select model", ID: modelID}
	}
	s.ModelID = modelID
	return nil
}

// normalizeCatalog sorts names and drops blanks and duplicates.
func normalizeCatalog(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

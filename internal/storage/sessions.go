// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/desktollama/internal/model"
)

// DefaultNamespace prefixes every session key.
const DefaultNamespace = "sessions"

// previewLength bounds Summary.Preview.
const previewLength = 50

// =============================================================================
// PERSISTED RECORD
// =============================================================================

// record is the on-disk shape of a session. The title is deliberately absent.
type record struct {
	ModelID  *string          `json:"modelId"`
	Messages *[]recordMessage `json:"messages"`
}

type recordMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func encodeSession(s *model.Session) ([]byte, error) {
	msgs := s.Messages()
	out := make([]recordMessage, len(msgs))
	for i, m := range msgs {
		out[i] = recordMessage{Role: string(m.Role), Content: m.Content}
	}
	modelID := s.ModelID

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(record{ModelID: &modelID, Messages: &out}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func decodeSession(id string, data []byte) (*model.Session, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.ModelID == nil {
		return nil, errors.New("missing modelId")
	}
	if rec.Messages == nil {
		return nil, errors.New("missing messages")
	}

	msgs := make([]model.Message, len(*rec.Messages))
	for i, m := range *rec.Messages {
		role := model.Role(m.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
		msgs[i] = model.Message{Role: role, Content: m.Content}
	}
	return model.RestoreSession(id, *rec.ModelID, msgs), nil
}

// =============================================================================
// SESSION STORE
// =============================================================================

// LoadResult is what LoadAll recovered.
type LoadResult struct {
	// Sessions in key order, which is creation order for generated ids.
	Sessions []*model.Session

	// Dropped counts entries that were missing or corrupt.
	Dropped int
}

// Summary is a lightweight description of a stored session for listings.
type Summary struct {
	ID           string    `json:"id" yaml:"id"`
	ModelID      string    `json:"modelId" yaml:"modelId"`
	MessageCount int       `json:"messageCount" yaml:"messageCount"`
	Preview      string    `json:"preview" yaml:"preview"`
	CreatedAt    time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}

// SessionStore persists sessions through a Backend.
type SessionStore struct {
	backend   Backend
	namespace string
	logger    *log.Logger
	locks     keyedMutex
}

// StoreOption configures a SessionStore.
type StoreOption func(*SessionStore)

// WithNamespace overrides the key namespace.
func WithNamespace(ns string) StoreOption {
	return func(s *SessionStore) {
		if ns != "" {
			s.namespace = ns
		}
	}
}

// WithStoreLogger sets the logger used for dropped entries.
func WithStoreLogger(l *log.Logger) StoreOption {
	return func(s *SessionStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSessionStore creates a store over backend.
func NewSessionStore(backend Backend, opts ...StoreOption) *SessionStore {
	s := &SessionStore{
		backend:   backend,
		namespace: DefaultNamespace,
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying backend.
func (s *SessionStore) Backend() Backend {
	return s.backend
}

// Key returns the storage key for id.
func (s *SessionStore) Key(id string) string {
	return s.prefix() + id
}

func (s *SessionStore) prefix() string {
	return s.namespace + "."
}

// Save writes the full record for sess. The record is encoded up front and
// handed to the backend in a single Set.
func (s *SessionStore) Save(ctx context.Context, sess *model.Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("save: session has no id")
	}
	data, err := encodeSession(sess)
	if err != nil {
		return fmt.Errorf("save: encode %s: %w", sess.ID, err)
	}

	unlock := s.locks.lock(sess.ID)
	defer unlock()

	if err := s.backend.Set(ctx, s.Key(sess.ID), data); err != nil {
		return model.BackendUnavailable("save", err)
	}
	return nil
}

// Load reads the session with id. The title is always the default.
func (s *SessionStore) Load(ctx context.Context, id string) (*model.Session, error) {
	data, ok, err := s.backend.Get(ctx, s.Key(id))
	if err != nil {
		return nil, model.BackendUnavailable("load", err)
	}
	if !ok {
		return nil, model.NotFound("load", id)
	}
	sess, err := decodeSession(id, data)
	if err != nil {
		return nil, model.Corrupt("load", id, err)
	}
	return sess, nil
}

// Delete removes the record for id. Deleting an absent id succeeds.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.backend.Remove(ctx, s.Key(id)); err != nil {
		return model.BackendUnavailable("delete", err)
	}
	return nil
}

// IDs returns every stored session id in key order.
func (s *SessionStore) IDs(ctx context.Context) ([]string, error) {
	ids, _, err := s.listIDs(ctx)
	return ids, err
}

// listIDs also reports how many keys in the namespace carry no id.
func (s *SessionStore) listIDs(ctx context.Context) (ids []string, blank int, err error) {
	keys, err := s.backend.ListKeys(ctx, s.prefix())
	if err != nil {
		return nil, 0, model.BackendUnavailable("list", err)
	}
	ids = make([]string, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, s.prefix())
		if id == "" {
			blank++
			continue
		}
		ids = append(ids, id)
	}
	return ids, blank, nil
}

// LoadAll loads every stored session. Entries that vanish or fail to parse
// are skipped and counted; only a failure to enumerate is returned.
func (s *SessionStore) LoadAll(ctx context.Context) (LoadResult, error) {
	ids, blank, err := s.listIDs(ctx)
	if err != nil {
		return LoadResult{}, err
	}

	result := LoadResult{Sessions: make([]*model.Session, 0, len(ids)), Dropped: blank}
	if blank > 0 {
		s.logger.Warn("dropping session entry without an id", "key", s.prefix())
	}
	for _, id := range ids {
		sess, err := s.Load(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return LoadResult{}, model.BackendUnavailable("load all", ctx.Err())
			}
			result.Dropped++
			s.logger.Warn("dropping unreadable session", "id", id, "err", err)
			continue
		}
		result.Sessions = append(result.Sessions, sess)
	}

	s.logger.Debug("loaded sessions", "count", len(result.Sessions), "dropped", result.Dropped)
	return result, nil
}

// List summarizes every readable stored session.
func (s *SessionStore) List(ctx context.Context) ([]Summary, error) {
	result, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(result.Sessions))
	for _, sess := range result.Sessions {
		out = append(out, Summarize(sess))
	}
	return out, nil
}

// Summarize builds the listing entry for sess.
func Summarize(sess *model.Session) Summary {
	sum := Summary{
		ID:           sess.ID,
		ModelID:      sess.ModelID,
		MessageCount: sess.Log().Len(),
		CreatedAt:    sess.CreatedAt(),
	}
	for _, m := range sess.Messages() {
		if m.Role == model.RoleUser {
			sum.Preview = m.Preview(previewLength)
			break
		}
	}
	return sum
}

// =============================================================================
// PER-ID LOCKING
// =============================================================================

// keyedMutex hands out one mutex per id and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

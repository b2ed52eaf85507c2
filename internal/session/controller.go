// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/desktollama/internal/model"
	"github.com/jeranaias/desktollama/internal/storage"
)

// Settings pseudo-session identity. It is always first, never persisted and
// never closable.
const (
	SettingsID    = "settings"
	SettingsTitle = "Settings"
)

// DuplicateSuffix is appended to the title of a duplicated session.
const DuplicateSuffix = " (copy)"

var (
	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("controller already initialized")

	// ErrNotInitialized is returned by mutating operations before Initialize.
	ErrNotInitialized = errors.New("controller not initialized")
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Store is the persistence capability the controller needs.
type Store interface {
	Save(ctx context.Context, s *model.Session) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) (storage.LoadResult, error)
}

// Catalog is the model-catalog capability the controller needs.
type Catalog interface {
	ListAvailable(ctx context.Context) []string
	Select(s *model.Session, modelID string) error
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the ordered session collection and the selection. It is
// the only thing that mutates either.
type Controller struct {
	store   Store
	catalog Catalog
	logger  *log.Logger
	newID   func() string

	mu          sync.RWMutex
	sessions    []*model.Session
	selected    int
	initialized bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithIDGenerator replaces model.NewID for minting session ids.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewController creates a controller holding only the settings entry.
// Call Initialize before anything else.
func NewController(store Store, catalog Catalog, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		catalog:  catalog,
		logger:   log.New(io.Discard),
		newID:    model.NewID,
		sessions: []*model.Session{newSettings()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newSettings() *model.Session {
	return model.NewSession(SettingsID, SettingsTitle)
}

// IsSettings reports whether s is the settings pseudo-session.
func IsSettings(s *model.Session) bool {
	return s != nil && s.ID == SettingsID
}

// IsSettings reports whether s is the settings pseudo-session.
func (c *Controller) IsSettings(s *model.Session) bool {
	return IsSettings(s)
}

// Initialize loads persisted sessions after the settings entry and selects
// the last one loaded. It returns how many stored entries were dropped.
// A failed Initialize may be retried.
func (c *Controller) Initialize(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return 0, ErrAlreadyInitialized
	}

	result, err := c.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	dropped := result.Dropped
	sessions := make([]*model.Session, 0, len(result.Sessions)+1)
	sessions = append(sessions, newSettings())
	for _, s := range result.Sessions {
		if s == nil || s.ID == SettingsID {
			dropped++
			continue
		}
		sessions = append(sessions, s)
	}

	c.sessions = sessions
	c.selected = len(sessions) - 1
	c.initialized = true

	c.logger.Info("sessions restored", "count", len(sessions)-1, "dropped", dropped)
	return dropped, nil
}

// Initialized reports whether Initialize has succeeded.
func (c *Controller) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// =============================================================================
// COLLECTION MUTATION
// =============================================================================

// CreateSession appends an empty session, persists it and selects it.
func (c *Controller) CreateSession(ctx context.Context) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil, ErrNotInitialized
	}

	s := model.NewSession(c.newID(), model.DefaultTitle)
	if err := c.store.Save(ctx, s); err != nil {
		return nil, err
	}

	c.sessions = append(c.sessions, s)
	c.selected = len(c.sessions) - 1

	c.logger.Debug("session created", "id", s.ID)
	return snapshot(s), nil
}

// DuplicateSession copies the model choice and history of sourceID into a
// new session inserted right after the source, persists it and selects it.
func (c *Controller) DuplicateSession(ctx context.Context, sourceID string) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil, ErrNotInitialized
	}

	idx := c.indexOf(sourceID)
	if idx <= 0 {
		return nil, model.NotFound("duplicate", sourceID)
	}

	src := c.sessions[idx]
	dup := src.Clone(c.newID(), src.Title+DuplicateSuffix)
	if err := c.store.Save(ctx, dup); err != nil {
		return nil, err
	}

	pos := idx + 1
	c.sessions = append(c.sessions, nil)
	copy(c.sessions[pos+1:], c.sessions[pos:])
	c.sessions[pos] = dup
	c.selected = pos

	c.logger.Debug("session duplicated", "source", sourceID, "id", dup.ID)
	return snapshot(dup), nil
}

// CloseSession deletes the persisted record for id and removes it. If it was
// selected, the selection moves to the new last element.
func (c *Controller) CloseSession(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotInitialized
	}

	idx := c.indexOf(id)
	if idx <= 0 {
		return model.NotFound("close", id)
	}

	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}

	wasSelected := idx == c.selected
	last := len(c.sessions) - 1
	copy(c.sessions[idx:], c.sessions[idx+1:])
	c.sessions[last] = nil
	c.sessions = c.sessions[:last]

	switch {
	case wasSelected:
		c.selected = len(c.sessions) - 1
	case idx < c.selected:
		c.selected--
	}

	c.logger.Debug("session closed", "id", id)
	return nil
}

// =============================================================================
// SELECTION
// =============================================================================

// SelectSession moves the selection to id. Unknown ids are ignored.
func (c *Controller) SelectSession(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return false
	}
	c.selected = idx
	return true
}

// SelectIndex moves the selection to position i. Out of range is ignored.
func (c *Controller) SelectIndex(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i < 0 || i >= len(c.sessions) {
		return false
	}
	c.selected = i
	return true
}

// SelectSettings selects the settings entry.
func (c *Controller) SelectSettings() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = 0
}

// =============================================================================
// SESSION CONTENT
// =============================================================================

// AvailableModels returns the current model catalog.
func (c *Controller) AvailableModels(ctx context.Context) []string {
	if c.catalog == nil {
		return []string{}
	}
	return c.catalog.ListAvailable(ctx)
}

// SelectModel binds modelID to session id and persists the change. On a
// failed write the previous model is restored.
func (c *Controller) SelectModel(ctx context.Context, id, modelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotInitialized
	}

	s := c.find(id)
	if s == nil {
		return model.NotFound("select model", id)
	}
	if c.catalog == nil {
		return &model.Error{Kind: model.KindInvalidModel, Op: "select model", ID: modelID}
	}

	prev := s.ModelID
	if err := c.catalog.Select(s, modelID); err != nil {
		return err
	}
	if err := c.store.Save(ctx, s); err != nil {
		s.ModelID = prev
		return err
	}

	c.logger.Debug("model selected", "id", id, "model", modelID)
	return nil
}

// SubmitMessage appends a user turn to session id and returns once it is
// durable. Blank text is a no-op and performs no write.
func (c *Controller) SubmitMessage(ctx context.Context, id, text string) (model.Message, bool, error) {
	return c.appendTurn(ctx, "submit", id, model.RoleUser, text)
}

// RecordReply appends an assistant turn to session id and persists it.
// Reply generation lives outside this package; this is where its output
// becomes durable.
func (c *Controller) RecordReply(ctx context.Context, id, content string) (model.Message, bool, error) {
	return c.appendTurn(ctx, "record reply", id, model.RoleAssistant, content)
}

func (c *Controller) appendTurn(ctx context.Context, op, id string, role model.Role, text string) (model.Message, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return model.Message{}, false, ErrNotInitialized
	}

	s := c.find(id)
	if s == nil {
		return model.Message{}, false, model.NotFound(op, id)
	}

	l := s.Log()
	n := l.Len()
	msg, ok := l.Append(role, text)
	if !ok {
		return model.Message{}, false, nil
	}
	if err := c.store.Save(ctx, s); err != nil {
		l.Rollback(n)
		return model.Message{}, false, err
	}
	return msg, true, nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Sessions returns a snapshot of the collection, settings first.
func (c *Controller) Sessions() []*model.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*model.Session, len(c.sessions))
	for i, s := range c.sessions {
		out[i] = snapshot(s)
	}
	return out
}

// Len returns the collection size including the settings entry.
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Selected returns the selected index.
func (c *Controller) Selected() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// SelectedSession returns a snapshot of the selected session.
func (c *Controller) SelectedSession() *model.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return snapshot(c.sessions[c.selected])
}

// Session returns a snapshot of session id, or nil.
func (c *Controller) Session(id string) *model.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if s := c.find(id); s != nil {
		return snapshot(s)
	}
	if id == SettingsID {
		return snapshot(c.sessions[0])
	}
	return nil
}

// indexOf returns the position of id, or -1. Callers hold c.mu.
func (c *Controller) indexOf(id string) int {
	for i, s := range c.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// find returns the live user session with id; the settings entry is never
// returned. Callers hold c.mu.
func (c *Controller) find(id string) *model.Session {
	if idx := c.indexOf(id); idx > 0 {
		return c.sessions[idx]
	}
	return nil
}

func snapshot(s *model.Session) *model.Session {
	return s.Clone(s.ID, s.Title)
}

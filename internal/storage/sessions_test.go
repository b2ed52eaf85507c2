// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/desktollama/internal/model"
)

func newTestSession(id, modelID string, turns ...string) *model.Session {
	s := model.NewSession(id, "Custom Title")
	s.ModelID = modelID
	for i, text := range turns {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		s.Log().Append(role, text)
	}
	return s
}

func mustSave(t *testing.T, store *SessionStore, sess *model.Session) {
	t.Helper()
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("Save(%q) error = %v", sess.ID, err)
	}
}

// assertJSON compares raw against want after decoding both.
func assertJSON(t *testing.T, raw []byte, want string) {
	t.Helper()
	var got, exp any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("record is not JSON: %v\n%s", err, raw)
	}
	if err := json.Unmarshal([]byte(want), &exp); err != nil {
		t.Fatalf("bad expectation: %v", err)
	}
	if !reflect.DeepEqual(got, exp) {
		t.Errorf("record = %s, want %s", raw, want)
	}
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestSessionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewSessionStore(b)
			sess := newTestSession(model.NewID(), "llama3", "hello", "hi there", "how are you?")
			mustSave(t, store, sess)

			loaded, err := store.Load(ctx, sess.ID)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded.ID != sess.ID || loaded.ModelID != "llama3" {
				t.Errorf("Load() = {ID: %q, ModelID: %q}, want {%q, llama3}", loaded.ID, loaded.ModelID, sess.ID)
			}
			if !slices.Equal(loaded.Messages(), sess.Messages()) {
				t.Errorf("Messages() = %+v, want %+v", loaded.Messages(), sess.Messages())
			}
			if loaded.Title != model.DefaultTitle {
				t.Errorf("Title = %q, want the default; titles are not stored", loaded.Title)
			}
		})
	}
}

func TestSessionStore_RoundTripEmpty(t *testing.T) {
	store := NewSessionStore(NewMemoryBackend())
	mustSave(t, store, model.NewSession("empty", model.DefaultTitle))

	loaded, err := store.Load(context.Background(), "empty")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ModelID != model.Unselected {
		t.Errorf("ModelID = %q, want unselected", loaded.ModelID)
	}
	if len(loaded.Messages()) != 0 {
		t.Errorf("Messages() = %+v, want none", loaded.Messages())
	}
}

func TestSessionStore_RecordFormat(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	store := NewSessionStore(b)

	mustSave(t, store, newTestSession("abc", "llama3", "hello"))

	raw, ok, err := b.Get(ctx, "sessions.abc")
	if err != nil || !ok {
		t.Fatalf("Get() = _, %v, %v", ok, err)
	}
	assertJSON(t, raw, `{"modelId":"llama3","messages":[{"role":"user","content":"hello"}]}`)

	mustSave(t, store, model.NewSession("empty", model.DefaultTitle))
	raw, _, _ = b.Get(ctx, "sessions.empty")
	assertJSON(t, raw, `{"modelId":"","messages":[]}`)
}

func TestSessionStore_SaveOverwrites(t *testing.T) {
	store := NewSessionStore(NewMemoryBackend())

	sess := newTestSession("a", "", "one")
	mustSave(t, store, sess)

	sess.ModelID = "mistral"
	sess.Log().Append(model.RoleAssistant, "two")
	mustSave(t, store, sess)

	loaded, err := store.Load(context.Background(), "a")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ModelID != "mistral" || len(loaded.Messages()) != 2 {
		t.Errorf("Load() = {ModelID: %q, %d messages}, want {mistral, 2}", loaded.ModelID, len(loaded.Messages()))
	}
}

func TestSessionStore_SaveRequiresID(t *testing.T) {
	store := NewSessionStore(NewMemoryBackend())
	if err := store.Save(context.Background(), &model.Session{}); err == nil {
		t.Error("Save() of a session without an id succeeded")
	}
	if err := store.Save(context.Background(), nil); err == nil {
		t.Error("Save(nil) succeeded")
	}
}

// =============================================================================
// ERRORS
// =============================================================================

func TestSessionStore_LoadMissing(t *testing.T) {
	store := NewSessionStore(NewMemoryBackend())
	if _, err := store.Load(context.Background(), "ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestSessionStore_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"wrong shape", `[1,2,3]`},
		{"missing messages", `{"modelId":"llama3"}`},
		{"missing model", `{"messages":[]}`},
		{"bad role", `{"modelId":"","messages":[{"role":"system","content":"x"}]}`},
		{"messages not array", `{"modelId":"","messages":"hello"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewMemoryBackend()
			mustSet(t, b, "sessions.x", []byte(tc.raw))

			if _, err := NewSessionStore(b).Load(context.Background(), "x"); !model.IsCorrupt(err) {
				t.Errorf("Load() error = %v, want corrupt", err)
			}
		})
	}
}

func TestSessionStore_BackendFailures(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	store := NewSessionStore(b)
	sess := newTestSession("a", "", "hi")

	b.FailWrites(true)
	if err := store.Save(ctx, sess); !errors.Is(err, model.ErrBackendUnavailable) {
		t.Errorf("Save() error = %v, want ErrBackendUnavailable", err)
	}
	if err := store.Delete(ctx, "a"); !errors.Is(err, model.ErrBackendUnavailable) {
		t.Errorf("Delete() error = %v, want ErrBackendUnavailable", err)
	}
	b.FailWrites(false)

	mustSave(t, store, sess)

	b.FailReads(true)
	if _, err := store.Load(ctx, "a"); !errors.Is(err, model.ErrBackendUnavailable) {
		t.Errorf("Load() error = %v, want ErrBackendUnavailable", err)
	}
	if _, err := store.LoadAll(ctx); !errors.Is(err, model.ErrBackendUnavailable) {
		t.Errorf("LoadAll() error = %v, want ErrBackendUnavailable", err)
	}
}

func TestSessionStore_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(NewMemoryBackend())

	mustSave(t, store, newTestSession("a", ""))
	for i := 0; i < 2; i++ {
		if err := store.Delete(ctx, "a"); err != nil {
			t.Fatalf("Delete() #%d error = %v", i+1, err)
		}
	}

	if _, err := store.Load(ctx, "a"); !model.IsNotFound(err) {
		t.Errorf("Load() after delete error = %v, want not found", err)
	}
}

// =============================================================================
// ENUMERATION
// =============================================================================

func TestSessionStore_LoadAllCreationOrder(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewSessionStore(b)

			var ids []string
			for i := 0; i < 5; i++ {
				ids = append(ids, model.NewID())
			}
			// Save out of order; enumeration follows the ids.
			for _, i := range []int{3, 0, 4, 1, 2} {
				mustSave(t, store, model.NewSession(ids[i], ""))
			}

			result, err := store.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll() error = %v", err)
			}
			if result.Dropped != 0 {
				t.Errorf("Dropped = %d, want 0", result.Dropped)
			}

			got := make([]string, len(result.Sessions))
			for i, s := range result.Sessions {
				got[i] = s.ID
			}
			if !slices.Equal(got, ids) {
				t.Errorf("LoadAll() order = %v, want %v", got, ids)
			}
		})
	}
}

func TestSessionStore_LoadAllDropsCorrupt(t *testing.T) {
	b := NewMemoryBackend()

	var logs bytes.Buffer
	store := NewSessionStore(b, WithStoreLogger(log.New(&logs)))

	mustSave(t, store, newTestSession("a", "llama3", "hi"))
	mustSet(t, b, "sessions.b", []byte("garbage"))
	mustSave(t, store, newTestSession("c", ""))

	result, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if result.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", result.Dropped)
	}
	if len(result.Sessions) != 2 || result.Sessions[0].ID != "a" || result.Sessions[1].ID != "c" {
		t.Errorf("LoadAll() kept %d sessions, want a and c", len(result.Sessions))
	}
	if !strings.Contains(logs.String(), "dropping unreadable session") {
		t.Errorf("log = %q, want a warning for the dropped entry", logs.String())
	}
}

func TestSessionStore_LoadAllCountsEntryWithoutID(t *testing.T) {
	b := NewMemoryBackend()

	var logs bytes.Buffer
	store := NewSessionStore(b, WithStoreLogger(log.New(&logs)))

	mustSave(t, store, newTestSession("a", "", "hi"))
	mustSet(t, b, "sessions.", []byte(`{"modelId":"","messages":[]}`))

	result, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if result.Dropped != 1 {
		t.Errorf("Dropped = %d, want the id-less entry counted", result.Dropped)
	}
	if len(result.Sessions) != 1 || result.Sessions[0].ID != "a" {
		t.Errorf("LoadAll() kept %d sessions, want only a", len(result.Sessions))
	}
	if !strings.Contains(logs.String(), "without an id") {
		t.Errorf("log = %q, want a warning for the id-less entry", logs.String())
	}

	ids, err := store.IDs(context.Background())
	if err != nil {
		t.Fatalf("IDs() error = %v", err)
	}
	if !slices.Equal(ids, []string{"a"}) {
		t.Errorf("IDs() = %q, want [a]", ids)
	}
}

func TestSessionStore_LoadAllEmpty(t *testing.T) {
	result, err := NewSessionStore(NewMemoryBackend()).LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(result.Sessions) != 0 || result.Dropped != 0 {
		t.Errorf("LoadAll() = %d sessions, %d dropped; want none", len(result.Sessions), result.Dropped)
	}
}

func TestSessionStore_Namespace(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	work := NewSessionStore(b, WithNamespace("work"))
	home := NewSessionStore(b)

	mustSave(t, work, newTestSession("a", ""))
	mustSave(t, home, newTestSession("b", ""))
	mustSet(t, b, "unrelated", []byte("{}"))

	if got := work.Key("a"); got != "work.a" {
		t.Errorf("Key(a) = %q, want %q", got, "work.a")
	}

	for store, want := range map[*SessionStore][]string{work: {"a"}, home: {"b"}} {
		ids, err := store.IDs(ctx)
		if err != nil {
			t.Fatalf("IDs() error = %v", err)
		}
		if !slices.Equal(ids, want) {
			t.Errorf("IDs() = %v, want %v", ids, want)
		}
	}
}

func TestSessionStore_List(t *testing.T) {
	store := NewSessionStore(NewMemoryBackend())

	long := strings.Repeat("word ", 30)
	mustSave(t, store, newTestSession("a", "llama3", long, "reply"))
	mustSave(t, store, newTestSession("b", ""))

	sums, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("List() returned %d summaries, want 2", len(sums))
	}

	first := sums[0]
	if first.ID != "a" || first.ModelID != "llama3" || first.MessageCount != 2 {
		t.Errorf("summary = %+v, want a/llama3 with 2 messages", first)
	}
	if !strings.HasSuffix(first.Preview, "...") || len([]rune(first.Preview)) > previewLength {
		t.Errorf("Preview = %q, want a truncated preview of at most %d runes", first.Preview, previewLength)
	}

	if sums[1].MessageCount != 0 || sums[1].Preview != "" {
		t.Errorf("empty session summary = %+v", sums[1])
	}

	raw, err := json.Marshal(sums[1])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(raw), `"messageCount":0`) {
		t.Errorf("summary JSON = %s, want messageCount present", raw)
	}
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestSessionStore_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewSessionStore(b)

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					s := newTestSession("shared", "", strings.Repeat("x", i+1))
					if err := store.Save(ctx, s); err != nil {
						t.Errorf("Save() error = %v", err)
					}
				}(i)
			}
			wg.Wait()

			// Last writer wins, never a torn record.
			loaded, err := store.Load(ctx, "shared")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(loaded.Messages()) != 1 {
				t.Errorf("loaded %d messages, want 1", len(loaded.Messages()))
			}
			if len(store.locks.locks) != 0 {
				t.Errorf("%d per-id locks left behind", len(store.locks.locks))
			}
		})
	}
}

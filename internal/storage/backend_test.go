// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// =============================================================================
// BACKEND CONTRACT
// =============================================================================

// backends returns a fresh instance of every backend kind.
func backends(t *testing.T) map[string]Backend {
	t.Helper()

	fileBackend, err := NewFileBackend(filepath.Join(t.TempDir(), "kv"))
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}

	sqliteBackend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error = %v", err)
	}

	all := map[string]Backend{
		KindMemory: NewMemoryBackend(),
		KindFile:   fileBackend,
		KindSQLite: sqliteBackend,
	}
	t.Cleanup(func() {
		for _, b := range all {
			b.Close()
		}
	})
	return all
}

// mustSet fails the test if a backend write fails.
func mustSet(t *testing.T, b Backend, key string, value []byte) {
	t.Helper()
	if err := b.Set(context.Background(), key, value); err != nil {
		t.Fatalf("Set(%q) error = %v", key, err)
	}
}

func TestBackend_GetMissing(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			v, ok, err := b.Get(ctx, "sessions.nope")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if ok || v != nil {
				t.Errorf("Get() = %q, %v; want nil, false", v, ok)
			}
		})
	}
}

func TestBackend_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			mustSet(t, b, "sessions.a", []byte("first"))
			mustSet(t, b, "sessions.a", []byte("second"))

			v, ok, err := b.Get(ctx, "sessions.a")
			if err != nil || !ok {
				t.Fatalf("Get() = _, %v, %v", ok, err)
			}
			if string(v) != "second" {
				t.Errorf("Get() = %q, want %q", v, "second")
			}
		})
	}
}

func TestBackend_EmptyValue(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			mustSet(t, b, "k", nil)
			v, ok, err := b.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !ok {
				t.Error("Get() reported an empty value as missing")
			}
			if len(v) != 0 {
				t.Errorf("Get() = %q, want empty", v)
			}
		})
	}
}

func TestBackend_EmptyKeyRejected(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Set(ctx, "", []byte("x")); !errors.Is(err, ErrEmptyKey) {
				t.Errorf("Set(\"\") error = %v, want ErrEmptyKey", err)
			}
		})
	}
}

func TestBackend_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			mustSet(t, b, "sessions.a", []byte("x"))
			for _, k := range []string{"sessions.a", "sessions.a", "sessions.never"} {
				if err := b.Remove(ctx, k); err != nil {
					t.Fatalf("Remove(%q) error = %v", k, err)
				}
			}

			_, ok, err := b.Get(ctx, "sessions.a")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if ok {
				t.Error("removed key is still present")
			}
		})
	}
}

func TestBackend_ListKeysByPrefixInOrder(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"sessions.c", "other.x", "sessions.a", "sessionsX", "sessions.b", "zzz"} {
				mustSet(t, b, k, []byte(k))
			}

			keys, err := b.ListKeys(ctx, "sessions.")
			if err != nil {
				t.Fatalf("ListKeys() error = %v", err)
			}
			if want := []string{"sessions.a", "sessions.b", "sessions.c"}; !slices.Equal(keys, want) {
				t.Errorf("ListKeys() = %v, want %v", keys, want)
			}

			none, err := b.ListKeys(ctx, "missing.")
			if err != nil {
				t.Fatalf("ListKeys() error = %v", err)
			}
			if len(none) != 0 {
				t.Errorf("ListKeys(missing.) = %v, want none", none)
			}
		})
	}
}

func TestBackend_AwkwardKeys(t *testing.T) {
	ctx := context.Background()
	keys := []string{"sessions.a/b", "sessions.../x", ".hidden", "sessions.ü ñ", "sessions.%41"}
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range keys {
				mustSet(t, b, k, []byte(k))
			}
			for _, k := range keys {
				v, ok, err := b.Get(ctx, k)
				if err != nil || !ok {
					t.Fatalf("Get(%q) = _, %v, %v", k, ok, err)
				}
				if string(v) != k {
					t.Errorf("Get(%q) = %q", k, v)
				}
			}
			listed, err := b.ListKeys(ctx, "")
			if err != nil {
				t.Fatalf("ListKeys() error = %v", err)
			}
			if len(listed) != len(keys) {
				t.Errorf("ListKeys() = %v, want %d keys", listed, len(keys))
			}
		})
	}
}

func TestBackend_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Set(ctx, "k", []byte("v")); err == nil {
				t.Error("Set() with a canceled context succeeded")
			}
		})
	}
}

// =============================================================================
// BACKEND-SPECIFIC TESTS
// =============================================================================

func TestFileBackend_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		mustSet(t, b, "sessions.a", []byte(strings.Repeat("x", i)))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "sessions.a.kv" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("directory holds %v, want [sessions.a.kv]", names)
	}
}

func TestFileBackend_IgnoresStrayFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("partial"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sessions.dir.kv"), 0700); err != nil {
		t.Fatal(err)
	}

	keys, err := b.ListKeys(context.Background(), "")
	if err != nil {
		t.Fatalf("ListKeys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("ListKeys() = %v, want none", keys)
	}
}

func TestSQLiteBackend_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")
	ctx := context.Background()

	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error = %v", err)
	}
	mustSet(t, b, "sessions.a", []byte(`{"x":1}`))
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b, err = NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer b.Close()

	v, ok, err := b.Get(ctx, "sessions.a")
	if err != nil || !ok {
		t.Fatalf("Get() = _, %v, %v", ok, err)
	}
	if string(v) != `{"x":1}` {
		t.Errorf("Get() = %q after reopen", v)
	}
}

func TestMemoryBackend_FaultHooks(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	mustSet(t, b, "k", []byte("v"))

	b.FailWrites(true)
	if err := b.Set(ctx, "k", []byte("w")); !errors.Is(err, ErrInjected) {
		t.Errorf("Set() error = %v, want ErrInjected", err)
	}
	if err := b.Remove(ctx, "k"); !errors.Is(err, ErrInjected) {
		t.Errorf("Remove() error = %v, want ErrInjected", err)
	}
	b.FailWrites(false)

	b.FailReads(true)
	if _, _, err := b.Get(ctx, "k"); !errors.Is(err, ErrInjected) {
		t.Errorf("Get() error = %v, want ErrInjected", err)
	}
	if _, err := b.ListKeys(ctx, ""); !errors.Is(err, ErrInjected) {
		t.Errorf("ListKeys() error = %v, want ErrInjected", err)
	}
	b.FailReads(false)

	v, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Errorf("Get() = %q, %v, %v; want the value written before the faults", v, ok, err)
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestMemoryBackend_CopiesValues(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	in := []byte("abc")
	mustSet(t, b, "k", in)
	in[0] = 'X'

	out, _, _ := b.Get(ctx, "k")
	if string(out) != "abc" {
		t.Errorf("stored value changed with the caller's slice: %q", out)
	}
	out[1] = 'Y'

	if again, _, _ := b.Get(ctx, "k"); string(again) != "abc" {
		t.Errorf("stored value changed with a returned slice: %q", again)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		opts    Options
		wantErr bool
	}{
		{Options{Kind: "memory"}, false},
		{Options{Kind: "file", Path: filepath.Join(dir, "files")}, false},
		{Options{Kind: "SQLite", Path: filepath.Join(dir, "a.db")}, false},
		{Options{Kind: "", Path: filepath.Join(dir, "b.db")}, false},
		{Options{Kind: "file"}, true},
		{Options{Kind: "sqlite"}, true},
		{Options{Kind: "redis"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.opts.Kind+"/"+filepath.Base(tc.opts.Path), func(t *testing.T) {
			b, err := Open(tc.opts)
			if tc.wantErr {
				if err == nil {
					b.Close()
					t.Error("Open() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if err := b.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got, want := expandHome("~/x/y"), filepath.Join(home, "x", "y"); got != want {
		t.Errorf("expandHome(~/x/y) = %q, want %q", got, want)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("expandHome(/abs/path) = %q", got)
	}
}

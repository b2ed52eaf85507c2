// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DESKTOLLAMA_OLLAMA_URL",
		"DESKTOLLAMA_STORAGE_BACKEND",
		"DESKTOLLAMA_STORAGE_PATH",
		"DESKTOLLAMA_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

// =============================================================================
// DEFAULTS
// =============================================================================

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "sessions.db", filepath.Base(cfg.Storage.Path))
	assert.Equal(t, "sessions", cfg.Storage.Namespace)
	assert.Equal(t, "http://127.0.0.1:11434", cfg.Ollama.URL)
	assert.Equal(t, 10*time.Second, cfg.OllamaTimeout())
	assert.Zero(t, cfg.RefreshInterval())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoadFromPath_TOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[storage]
backend = "file"

[ollama]
url = "http://gpu-box:11434"

[catalog]
refresh_interval_secs = 30
`), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "sessions", filepath.Base(cfg.Storage.Path), "file backend defaults to a directory")
	assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.URL)
	assert.Equal(t, 10, cfg.Ollama.TimeoutSecs)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromPath_JSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"storage":{"backend":"memory"},"log":{"level":"debug"}}`), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Empty(t, cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[storage\nbackend ="), 0600))
	_, err := LoadFromPath(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalid, []byte("[storage]\nbackend = \"redis\""), 0600))
	_, err = LoadFromPath(invalid)
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs), "got %v", err)
	assert.Equal(t, "storage.backend", verrs[0].Field)

	_, err = LoadFromPath(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_UsesHomeDirectory(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".desktollama", "sessions.db"), cfg.Storage.Path)

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".desktollama"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".desktollama", "config.json"),
		[]byte(`{"ollama":{"timeout_secs":42}}`), 0600))

	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Ollama.TimeoutSecs)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DESKTOLLAMA_OLLAMA_URL", "http://other:1")
	t.Setenv("DESKTOLLAMA_STORAGE_BACKEND", "memory")
	t.Setenv("DESKTOLLAMA_STORAGE_PATH", "/tmp/x")
	t.Setenv("DESKTOLLAMA_LOG_LEVEL", "error")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "http://other:1", cfg.Ollama.URL)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/x", cfg.Storage.Path)
	assert.Equal(t, "error", cfg.Log.Level)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"missing path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"dotted namespace", func(c *Config) { c.Storage.Namespace = "a.b" }, "storage.namespace"},
		{"bad url", func(c *Config) { c.Ollama.URL = "localhost:11434" }, "ollama.url"},
		{"zero timeout", func(c *Config) { c.Ollama.TimeoutSecs = 0 }, "ollama.timeout_secs"},
		{"negative refresh", func(c *Config) { c.Catalog.RefreshIntervalSecs = -1 }, "catalog.refresh_interval_secs"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			require.Len(t, verrs, 1)
			assert.Equal(t, tc.field, verrs[0].Field)
		})
	}
}

func TestValidate_MemoryNeedsNoPath(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = BackendMemory
	cfg.Storage.Path = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidateErrors_Error(t *testing.T) {
	errs := ValidateErrors{{Field: "a", Message: "x"}, {Field: "b", Message: "y"}}
	assert.Equal(t, "a: x; b: y", errs.Error())
	assert.Equal(t, "no validation errors", ValidateErrors{}.Error())
}

// =============================================================================
// SAVE
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Ollama.URL = "http://saved:11434"
	cfg.Catalog.RefreshIntervalSecs = 5
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveJSON_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Log.Level = "warn"
	require.NoError(t, SaveJSON(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", loaded.Log.Level)
}

// =============================================================================
// GET / SET
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("ollama.url")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:11434", v)

	require.NoError(t, cfg.Set("ollama.timeout_secs", "30"))
	assert.Equal(t, 30, cfg.Ollama.TimeoutSecs)

	require.NoError(t, cfg.Set("catalog.refresh_interval_secs", 15))
	assert.Equal(t, 15, cfg.Catalog.RefreshIntervalSecs)

	require.NoError(t, cfg.Set("LOG.LEVEL", "debug"))
	assert.Equal(t, "debug", cfg.Log.Level)

	assert.Error(t, cfg.Set("ollama.timeout_secs", "soon"))
	assert.Error(t, cfg.Set("ollama.nope", "x"))
	assert.Error(t, cfg.Set("ollama", "x"))
	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestGetAllKeys(t *testing.T) {
	keys := GetAllKeys()
	assert.Contains(t, keys, "storage.backend")
	assert.Contains(t, keys, "catalog.refresh_interval_secs")
	assert.Len(t, keys, 7)

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
			if err == nil {
				got <- cfg
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	cfg := Default()
	cfg.Log.Level = "debug"
	require.NoError(t, SaveTOML(cfg, path))

	select {
	case reloaded := <-got:
		assert.Equal(t, "debug", reloaded.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "config.toml"), 0, func(*Config, error) {})
	assert.Error(t, err)
}

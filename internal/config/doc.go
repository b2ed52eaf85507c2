// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for desktollama.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - StorageConfig: Session backend selection (sqlite, file, memory)
//   - OllamaConfig: Ollama server address and timeout
//   - ValidateErrors: Every validation problem found in one pass
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (DESKTOLLAMA_*)
//   - ~/.desktollama/config.toml
//   - ~/.desktollama/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Reload on change:
//
//	go config.Watch(ctx, path, 0, func(cfg *config.Config, err error) { ... })
package config

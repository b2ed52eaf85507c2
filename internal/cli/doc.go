// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the desktollama command tree.
//
// Every command loads the configuration, applies flag overrides and builds
// an App: the storage backend, the session store, the Ollama client, the
// model registry and the session controller.
//
// # Key Types
//
//   - App: the wired collaborators for one command run
//   - Shell: line-oriented front end for the session controller
//
// # Commands
//
//   - (none), shell: interactive shell over the open tabs
//   - sessions list|show|export|delete: saved sessions without the shell
//   - models [show <name>]: the model catalog
//   - config show|get|set|path|keys: configuration
//
// # Usage
//
//	func main() {
//	    cli.Execute()
//	}
//
// Output is colored only when stdout is a terminal. NO_COLOR disables
// color and FORCE_COLOR enables it.
package cli

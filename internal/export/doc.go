// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes sessions out as JSON, YAML or Markdown.
//
// # Key Types
//
//   - Exporter: Interface every format implements
//   - JSONExporter, YAMLExporter: Structured dumps of id, model and messages
//   - MarkdownExporter: Readable transcript with a YAML frontmatter
//
// # Usage
//
//	exp, err := export.ForFormat("md", nil)
//	err = exp.Export(os.Stdout, sess)
package export

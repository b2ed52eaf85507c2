// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/desktollama/internal/model"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter writes a session in one format.
type Exporter interface {
	// Export writes sess to w.
	Export(w io.Writer, sess *model.Session) error

	// FileExtension returns the appropriate file extension (e.g., ".md").
	FileExtension() string
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds the model and creation time to the output.
	IncludeMetadata bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{IncludeMetadata: true}
}

// =============================================================================
// FORMAT REGISTRY
// =============================================================================

var formats = map[string]func(*Options) Exporter{
	"json":     func(o *Options) Exporter { return NewJSONExporter(o) },
	"yaml":     func(o *Options) Exporter { return NewYAMLExporter(o) },
	"yml":      func(o *Options) Exporter { return NewYAMLExporter(o) },
	"markdown": func(o *Options) Exporter { return NewMarkdownExporter(o) },
	"md":       func(o *Options) Exporter { return NewMarkdownExporter(o) },
}

// ForFormat returns the exporter registered under name.
func ForFormat(name string, opts *Options) (Exporter, error) {
	fn, ok := formats[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown export format %q (want one of %s)", name, strings.Join(Formats(), ", "))
	}
	return fn(opts), nil
}

// Formats lists the accepted format names.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// DOCUMENT
// =============================================================================

// document is the structured form shared by the JSON and YAML exporters.
type document struct {
	ID        string            `json:"id" yaml:"id"`
	ModelID   string            `json:"modelId,omitempty" yaml:"modelId,omitempty"`
	CreatedAt string            `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	Messages  []documentMessage `json:"messages" yaml:"messages"`
}

type documentMessage struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

func newDocument(sess *model.Session, opts *Options) document {
	doc := document{ID: sess.ID, Messages: []documentMessage{}}
	if opts.IncludeMetadata {
		doc.ModelID = sess.ModelID
		if created := sess.CreatedAt(); !created.IsZero() {
			doc.CreatedAt = created.UTC().Format(time.RFC3339)
		}
	}
	for _, m := range sess.Messages() {
		doc.Messages = append(doc.Messages, documentMessage{Role: string(m.Role), Content: m.Content})
	}
	return doc
}

func checkSession(sess *model.Session) error {
	if sess == nil {
		return fmt.Errorf("session is nil")
	}
	return nil
}

func optionsOrDefault(opts *Options) *Options {
	if opts == nil {
		return DefaultOptions()
	}
	return opts
}

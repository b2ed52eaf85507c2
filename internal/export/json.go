// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"io"

	"github.com/jeranaias/desktollama/internal/model"
)

// JSONExporter exports sessions as indented JSON.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	return &JSONExporter{options: optionsOrDefault(opts)}
}

// Export writes sess as JSON.
func (e *JSONExporter) Export(w io.Writer, sess *model.Session) error {
	if err := checkSession(sess); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newDocument(sess, e.options))
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

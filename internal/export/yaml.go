// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/desktollama/internal/model"
)

// YAMLExporter exports sessions as YAML.
type YAMLExporter struct {
	options *Options
}

// NewYAMLExporter creates a new YAML exporter.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	return &YAMLExporter{options: optionsOrDefault(opts)}
}

// Export writes sess as YAML.
func (e *YAMLExporter) Export(w io.Writer, sess *model.Session) error {
	if err := checkSession(sess); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newDocument(sess, e.options)); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/desktollama/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports sessions as a readable Markdown transcript.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	return &MarkdownExporter{options: optionsOrDefault(opts)}
}

// frontmatter is the YAML header of a Markdown export.
type frontmatter struct {
	ID       string `yaml:"id"`
	Model    string `yaml:"model,omitempty"`
	Date     string `yaml:"date,omitempty"`
	Messages int    `yaml:"messages"`
}

// Export writes sess as Markdown.
func (e *MarkdownExporter) Export(w io.Writer, sess *model.Session) error {
	if err := checkSession(sess); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	msgs := sess.Messages()

	if e.options.IncludeMetadata {
		doc := newDocument(sess, e.options)
		header, err := yaml.Marshal(frontmatter{
			ID:       sess.ID,
			Model:    doc.ModelID,
			Date:     doc.CreatedAt,
			Messages: len(msgs),
		})
		if err != nil {
			return fmt.Errorf("encode frontmatter: %w", err)
		}
		bw.WriteString("---\n")
		bw.Write(header)
		bw.WriteString("---\n\n")
	}

	fmt.Fprintf(bw, "# %s\n\n", escapeMarkdown(sess.Title))
	if len(msgs) == 0 {
		bw.WriteString("*No messages yet.*\n")
	}

	for i, msg := range msgs {
		fmt.Fprintf(bw, "### %s\n\n", msg.Role.DisplayName())
		bw.WriteString(strings.TrimRight(msg.Content, "\n"))
		bw.WriteString("\n")
		if i < len(msgs)-1 {
			bw.WriteString("\n---\n\n")
		}
	}

	return bw.Flush()
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// escapeMarkdown escapes characters that would turn a title into markup.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"*", `\*`,
		"_", `\_`,
		"`", "\\`",
		"#", `\#`,
		"[", `\[`,
		"]", `\]`,
	)
	return r.Replace(s)
}

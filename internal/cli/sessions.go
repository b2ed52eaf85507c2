// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jeranaias/desktollama/internal/export"
	"github.com/jeranaias/desktollama/internal/storage"
)

func newSessionsCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect, export and delete saved sessions",
		Long: `Work with saved sessions without opening the shell.

Sessions are addressed by id or by any unique prefix of their id.`,
	}
	cmd.AddCommand(
		newSessionsListCommand(o),
		newSessionsShowCommand(o),
		newSessionsExportCommand(o),
		newSessionsDeleteCommand(o),
	)
	return cmd
}

// withStore opens the app for the duration of fn.
func withStore(o *rootOptions, fn func(store *storage.SessionStore) error) error {
	app, err := o.openApp()
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app.Store)
}

// errEmptySessionID rejects a blank id argument, which would otherwise
// prefix-match every session.
var errEmptySessionID = errors.New("session id must not be empty")

// resolveStoredID maps a full id or a unique prefix onto a stored session id.
func resolveStoredID(ctx context.Context, store *storage.SessionStore, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errEmptySessionID
	}
	ids, err := store.IDs(ctx)
	if err != nil {
		return "", err
	}
	var match string
	for _, id := range ids {
		if id == arg {
			return id, nil
		}
		if strings.HasPrefix(id, arg) {
			if match != "" {
				return "", fmt.Errorf("%q matches more than one session", arg)
			}
			match = id
		}
	}
	if match == "" {
		return "", fmt.Errorf("no session matches %q", arg)
	}
	return match, nil
}

// =============================================================================
// LIST
// =============================================================================

func newSessionsListCommand(o *rootOptions) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved sessions, oldest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(o, func(store *storage.SessionStore) error {
				summaries, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(summaries)
				}
				writeSummaries(cmd.OutOrStdout(), summaries)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func writeSummaries(out io.Writer, summaries []storage.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No saved sessions.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tMESSAGES\tCREATED\tPREVIEW")
	for _, s := range summaries {
		modelID := s.ModelID
		if modelID == "" {
			modelID = "-"
		}
		created := "-"
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", s.ID, modelID, s.MessageCount, created, s.Preview)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%s\n", plural(len(summaries), "session"))
}

// =============================================================================
// SHOW
// =============================================================================

func newSessionsShowCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(o, func(store *storage.SessionStore) error {
				ctx := cmd.Context()
				id, err := resolveStoredID(ctx, store, args[0])
				if err != nil {
					return err
				}
				sess, err := store.Load(ctx, id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				modelID := sess.ModelID
				if modelID == "" {
					modelID = "(none)"
				}
				fmt.Fprintln(out, TitleStyle.Render("Session "+sess.ID))
				fmt.Fprintf(out, "%s %s\n", LabelStyle.Render("Model:"), modelID)
				if created := sess.CreatedAt(); !created.IsZero() {
					fmt.Fprintf(out, "%s %s\n", LabelStyle.Render("Created:"), created.Local().Format("2006-01-02 15:04:05"))
				}
				fmt.Fprintln(out)
				writeTranscript(out, sess.Messages(), terminalWidth(out))
				return nil
			})
		},
	}
}

// =============================================================================
// EXPORT
// =============================================================================

func newSessionsExportCommand(o *rootOptions) *cobra.Command {
	var (
		format     string
		output     string
		noMetadata bool
	)

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a session transcript",
		Long: fmt.Sprintf(`Export a session as %s.

Output goes to stdout unless --output is given. When --output names a
directory the file is named after the session id and the format.`, strings.Join(export.Formats(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := export.ForFormat(format, &export.Options{IncludeMetadata: !noMetadata})
			if err != nil {
				return err
			}
			return withStore(o, func(store *storage.SessionStore) error {
				ctx := cmd.Context()
				id, err := resolveStoredID(ctx, store, args[0])
				if err != nil {
					return err
				}
				sess, err := store.Load(ctx, id)
				if err != nil {
					return err
				}

				if output == "" {
					return exporter.Export(cmd.OutOrStdout(), sess)
				}
				if info, err := os.Stat(output); err == nil && info.IsDir() {
					output = filepath.Join(output, sess.ID+exporter.FileExtension())
				}
				f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				if err := exporter.Export(f, sess); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", SuccessStyle.Render("Exported to"), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Output format: "+strings.Join(export.Formats(), ", "))
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file or directory instead of stdout")
	cmd.Flags().BoolVar(&noMetadata, "no-metadata", false, "Leave out model and creation time")
	return cmd
}

// =============================================================================
// DELETE
// =============================================================================

func newSessionsDeleteCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete saved sessions",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(o, func(store *storage.SessionStore) error {
				ctx := cmd.Context()
				for _, arg := range args {
					id, err := resolveStoredID(ctx, store, arg)
					if err != nil {
						return err
					}
					if err := store.Delete(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Deleted"), id)
				}
				return nil
			})
		},
	}
}

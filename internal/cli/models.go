// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jeranaias/desktollama/internal/ollama"
)

func newModelsCommand(o *rootOptions) *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models the Ollama server can serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := o.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if !long {
				names := app.Registry.ListAvailable(ctx)
				if len(names) == 0 {
					return noModelsError(cmd, app.Client)
				}
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			models, err := app.Client.ListModels(ctx)
			if err != nil {
				return err
			}
			if len(models) == 0 {
				return noModelsError(cmd, app.Client)
			}
			sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tFAMILY\tPARAMETERS\tQUANTIZATION")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					m.Name, m.FormatSize(), orDash(m.Details.Family),
					orDash(m.Details.ParameterSize), orDash(m.Details.QuantizationLevel))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show size and model details")

	cmd.AddCommand(newModelsShowCommand(o))
	return cmd
}

func newModelsShowCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show details of one model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := o.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			info, err := app.Client.GetModel(cmd.Context(), args[0])
			if err != nil {
				if ollama.IsModelNotFound(err) {
					return fmt.Errorf("model %q is not installed (ollama pull %s)", args[0], args[0])
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, TitleStyle.Render(args[0]))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Family:\t%s\n", orDash(info.Details.Family))
			fmt.Fprintf(w, "Parameters:\t%s\n", orDash(info.Details.ParameterSize))
			fmt.Fprintf(w, "Quantization:\t%s\n", orDash(info.Details.QuantizationLevel))
			fmt.Fprintf(w, "Format:\t%s\n", orDash(info.Details.Format))
			return w.Flush()
		},
	}
}

// noModelsError explains an empty catalog, telling an unreachable server
// apart from one with nothing installed.
func noModelsError(cmd *cobra.Command, client *ollama.Client) error {
	if err := client.CheckRunning(cmd.Context()); err != nil {
		return fmt.Errorf("no models available: Ollama is not reachable at %s", client.BaseURL())
	}
	fmt.Fprintln(cmd.OutOrStdout(), "No models installed. Pull one with: ollama pull <model>")
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

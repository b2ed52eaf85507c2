// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jeranaias/desktollama/internal/config"
	"github.com/jeranaias/desktollama/internal/logging"
)

// Version information, set by main at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds the persistent flags and what PersistentPreRunE derives
// from them.
type rootOptions struct {
	configPath  string
	verbose     bool
	backend     string
	storagePath string
	ollamaURL   string

	// source is the config file that was loaded, or "" for defaults.
	source    string
	cfg       *config.Config
	logger    *log.Logger
	logCloser io.Closer
}

// NewRootCommand builds the desktollama command tree.
func NewRootCommand() *cobra.Command {
	o := &rootOptions{}

	root := &cobra.Command{
		Use:   "desktollama",
		Short: "Multi-tab chat sessions for local Ollama models",
		Long: `desktollama keeps any number of independent chat sessions, each bound to
a model served by a local Ollama instance. Sessions survive restarts.

Running desktollama with no command opens the interactive shell.

Quick Start:
  desktollama                        # Open the shell
  desktollama sessions list          # List saved sessions
  desktollama sessions export <id>   # Export a transcript as Markdown
  desktollama models                 # List models Ollama can serve`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return o.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, o)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "", "Config file (default ~/.desktollama/config.toml)")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&o.backend, "backend", "", "Storage backend: sqlite, file or memory")
	flags.StringVar(&o.storagePath, "storage-path", "", "Database file (sqlite) or directory (file)")
	flags.StringVar(&o.ollamaURL, "ollama-url", "", "Ollama server URL")

	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newShellCommand(o),
		newSessionsCommand(o),
		newModelsCommand(o),
		newConfigCommand(o),
	)
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
		stop()
		os.Exit(1)
	}
}

// =============================================================================
// CONFIG AND LOGGER
// =============================================================================

// load resolves the configuration, applies flag overrides and builds the
// logger.
func (o *rootOptions) load(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromPath(o.configPath)
		o.source = o.configPath
	} else {
		cfg, err = config.Load()
		o.source = existingConfigPath()
	}
	if err != nil {
		return err
	}

	if o.backend != "" {
		cfg.Storage.Backend = o.backend
		// A file backend needs a directory, not the default database file.
		if o.backend == config.BackendFile && o.storagePath == "" && filepath.Ext(cfg.Storage.Path) == ".db" {
			cfg.Storage.Path = filepath.Join(filepath.Dir(cfg.Storage.Path), "sessions")
		}
	}
	if o.storagePath != "" {
		cfg.Storage.Path = o.storagePath
	}
	if o.ollamaURL != "" {
		cfg.Ollama.URL = o.ollamaURL
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	o.cfg, o.logger, o.logCloser = cfg, logger, closer
	return nil
}

func (o *rootOptions) close() error {
	if o.logCloser == nil {
		return nil
	}
	err := o.logCloser.Close()
	o.logCloser = nil
	return err
}

// openApp builds an App from the loaded configuration.
func (o *rootOptions) openApp() (*App, error) {
	return NewApp(o.cfg, o.logger)
}

// existingConfigPath returns the default config file that Load would read,
// or "" if neither exists.
func existingConfigPath() string {
	for _, pathFn := range []func() (string, error){config.ConfigPathTOML, config.ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

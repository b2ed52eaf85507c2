// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/desktollama/internal/config"
	"github.com/jeranaias/desktollama/internal/logging"
	"github.com/jeranaias/desktollama/internal/model"
	"github.com/jeranaias/desktollama/internal/session"
)

// historyFileName is the shell's input history inside the config directory.
const historyFileName = "shell_history"

// errSettingsSelected is returned by session commands while the settings
// tab is selected.
var errSettingsSelected = errors.New("the settings tab is selected; pick a session with /select or /new")

func newShellCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open the interactive session shell (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, o)
		},
	}
}

func runShell(cmd *cobra.Command, o *rootOptions) error {
	ctx := cmd.Context()

	app, err := o.openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	dropped, err := app.Start(ctx)
	if err != nil {
		return err
	}

	if o.source != "" {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go watchLogLevel(watchCtx, o, app)
	}

	sh := NewShell(app.Controller, cmd.InOrStdin(), cmd.OutOrStdout())
	sh.settings = app.Config
	if dir, err := config.ConfigDir(); err == nil {
		sh.historyFile = filepath.Join(dir, historyFileName)
	}
	if dropped > 0 {
		fmt.Fprintln(sh.out, WarningStyle.Render(fmt.Sprintf("%d saved session(s) could not be read and were skipped.", dropped)))
	}
	return sh.Run(ctx)
}

// watchLogLevel applies log.level changes from the config file while the
// shell runs. --verbose pins the level.
func watchLogLevel(ctx context.Context, o *rootOptions, app *App) {
	err := config.Watch(ctx, o.source, config.DefaultDebounce, func(cfg *config.Config, err error) {
		if err != nil {
			app.Logger.Warn("config reload failed", "err", err)
			return
		}
		if o.verbose {
			return
		}
		lvl, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return
		}
		app.Logger.SetLevel(lvl)
		app.Logger.Info("log level changed", "level", cfg.Log.Level)
	})
	if err != nil {
		app.Logger.Debug("config watch disabled", "err", err)
	}
}

// =============================================================================
// SHELL
// =============================================================================

// Shell is a line-oriented front end for the session controller. Slash
// commands manage tabs; any other line is submitted to the selected session.
type Shell struct {
	ctrl *session.Controller
	in   io.Reader
	out  io.Writer

	// historyFile persists interactive input between runs. Empty disables it.
	historyFile string

	// settings is shown on the settings tab. Optional.
	settings *config.Config
}

// NewShell creates a shell over ctrl. ctrl must already be initialized.
func NewShell(ctrl *session.Controller, in io.Reader, out io.Writer) *Shell {
	return &Shell{ctrl: ctrl, in: in, out: out}
}

// Run reads commands until /quit, end of input or ctx is done. A terminal
// gets line editing and history; anything else is read line by line.
func (s *Shell) Run(ctx context.Context) error {
	if isTerminal(s.in) && isTerminal(s.out) {
		return s.runInteractive(ctx)
	}
	return s.runScripted(ctx)
}

func (s *Shell) runInteractive(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	s.loadHistory(line)
	defer s.saveHistory(line)

	fmt.Fprintln(s.out, TitleStyle.Render("desktollama")+" "+DimStyle.Render("type /help for commands"))

	for ctx.Err() == nil {
		input, err := line.Prompt(s.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := s.Dispatch(ctx, input)
		if err != nil {
			s.printError(err)
		}
		if quit {
			return nil
		}
	}
	return nil
}

// runScripted reads newline-terminated commands. Lines have no length
// limit so long pasted messages are not rejected.
func (s *Shell) runScripted(ctx context.Context) error {
	r := bufio.NewReader(s.in)
	for {
		input, readErr := r.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return readErr
		}
		if ctx.Err() != nil {
			return nil
		}
		if input != "" {
			quit, err := s.Dispatch(ctx, input)
			if err != nil {
				s.printError(err)
			}
			if quit {
				return nil
			}
		}
		if readErr != nil {
			return nil
		}
	}
}

func (s *Shell) loadHistory(line *liner.State) {
	if s.historyFile == "" {
		return
	}
	if f, err := os.Open(s.historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
}

func (s *Shell) saveHistory(line *liner.State) {
	if s.historyFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(s.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}

// prompt names the selected tab and its model.
func (s *Shell) prompt() string {
	sel := s.ctrl.SelectedSession()
	if session.IsSettings(sel) {
		return "settings> "
	}
	if sel.HasModel() {
		return fmt.Sprintf("%s [%s]> ", sel.Label(), sel.ModelID)
	}
	return sel.Label() + "> "
}

// =============================================================================
// DISPATCH
// =============================================================================

// Dispatch runs one line of input. It reports whether the shell should exit.
func (s *Shell) Dispatch(ctx context.Context, input string) (quit bool, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return false, nil
	}
	if !strings.HasPrefix(input, "/") {
		return false, s.submit(ctx, input)
	}

	name, arg, _ := strings.Cut(input[1:], " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return true, nil
	case "help", "h", "?":
		s.printHelp()
	case "new", "n":
		err = s.newSession(ctx)
	case "dup", "duplicate":
		err = s.duplicate(ctx, arg)
	case "close":
		err = s.close(ctx, arg)
	case "tabs", "ls":
		s.printTabs()
	case "select", "s":
		err = s.selectTab(arg)
	case "settings":
		s.ctrl.SelectSettings()
		s.printSettings()
	case "models":
		s.printModels(ctx)
	case "model", "m":
		err = s.selectModel(ctx, arg)
	case "history":
		err = s.printHistory()
	default:
		err = fmt.Errorf("unknown command /%s (try /help)", name)
	}
	return false, err
}

func (s *Shell) submit(ctx context.Context, text string) error {
	sel := s.ctrl.SelectedSession()
	if session.IsSettings(sel) {
		return errSettingsSelected
	}

	_, ok, err := s.ctrl.SubmitMessage(ctx, sel.ID, text)
	if err != nil {
		return fmt.Errorf("message not saved: %w", err)
	}
	if !ok {
		return nil
	}
	if !sel.HasModel() {
		fmt.Fprintln(s.out, WarningStyle.Render("Saved. No model is selected for this session; pick one with /model <name>."))
		return nil
	}
	fmt.Fprintln(s.out, DimStyle.Render("Saved."))
	return nil
}

func (s *Shell) newSession(ctx context.Context) error {
	created, err := s.ctrl.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("could not create session: %w", err)
	}
	fmt.Fprintf(s.out, "%s %s %s\n", SuccessStyle.Render("Created"), created.Label(), DimStyle.Render(created.ID))
	return nil
}

func (s *Shell) duplicate(ctx context.Context, arg string) error {
	id, err := s.target(arg)
	if err != nil {
		return err
	}
	dup, err := s.ctrl.DuplicateSession(ctx, id)
	if err != nil {
		return fmt.Errorf("could not duplicate session: %w", err)
	}
	fmt.Fprintf(s.out, "%s %s %s\n", SuccessStyle.Render("Duplicated into"), dup.Label(), DimStyle.Render(dup.ID))
	return nil
}

func (s *Shell) close(ctx context.Context, arg string) error {
	id, err := s.target(arg)
	if err != nil {
		return err
	}
	closing := s.ctrl.Session(id)
	if err := s.ctrl.CloseSession(ctx, id); err != nil {
		return fmt.Errorf("could not close session: %w", err)
	}
	fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render("Closed"), closing.Label())
	return nil
}

func (s *Shell) selectTab(arg string) error {
	if arg == "" {
		return errors.New("usage: /select <tab number|session id>")
	}
	id, err := s.resolve(arg)
	if err != nil {
		return err
	}
	s.ctrl.SelectSession(id)
	if id == session.SettingsID {
		s.printSettings()
	}
	return nil
}

func (s *Shell) selectModel(ctx context.Context, name string) error {
	sel := s.ctrl.SelectedSession()
	if session.IsSettings(sel) {
		return errSettingsSelected
	}
	if name == "" {
		if sel.HasModel() {
			fmt.Fprintf(s.out, "%s %s\n", LabelStyle.Render("Model:"), sel.ModelID)
		} else {
			fmt.Fprintln(s.out, DimStyle.Render("No model selected."))
		}
		return nil
	}

	// Refresh the catalog so a freshly pulled model is accepted.
	s.ctrl.AvailableModels(ctx)
	if err := s.ctrl.SelectModel(ctx, sel.ID, name); err != nil {
		if model.IsInvalidModel(err) {
			return fmt.Errorf("%q is not an available model (see /models)", name)
		}
		return fmt.Errorf("model not changed: %w", err)
	}
	fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render("Model set to"), name)
	return nil
}

// target resolves arg, or the selected session when arg is empty. The
// settings tab is never a valid target.
func (s *Shell) target(arg string) (string, error) {
	if arg == "" {
		sel := s.ctrl.SelectedSession()
		if session.IsSettings(sel) {
			return "", errSettingsSelected
		}
		return sel.ID, nil
	}
	id, err := s.resolve(arg)
	if err != nil {
		return "", err
	}
	if id == session.SettingsID {
		return "", errors.New("the settings tab cannot be duplicated or closed")
	}
	return id, nil
}

// resolve maps a tab number, a full session id or a unique id prefix onto
// a session id.
func (s *Shell) resolve(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errEmptySessionID
	}
	sessions := s.ctrl.Sessions()

	if n, err := strconv.Atoi(arg); err == nil {
		if n < 0 || n >= len(sessions) {
			return "", fmt.Errorf("no tab %d (there are %d)", n, len(sessions))
		}
		return sessions[n].ID, nil
	}

	var match string
	for _, sess := range sessions {
		if sess.ID == arg {
			return arg, nil
		}
		if strings.HasPrefix(sess.ID, arg) {
			if match != "" {
				return "", fmt.Errorf("%q matches more than one session", arg)
			}
			match = sess.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no session matches %q", arg)
	}
	return match, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func (s *Shell) printError(err error) {
	fmt.Fprintf(s.out, "%s %v\n", ErrorStyle.Render("Error:"), err)
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, TitleStyle.Render("Commands"))
	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for _, row := range [][2]string{
		{"/new", "Open a new session"},
		{"/dup [tab|id]", "Duplicate a session (default: selected)"},
		{"/close [tab|id]", "Close a session and delete it from storage"},
		{"/tabs", "List open tabs"},
		{"/select <tab|id>", "Switch to a tab"},
		{"/settings", "Switch to the settings tab"},
		{"/models", "List available models"},
		{"/model [name]", "Show or set the selected session's model"},
		{"/history", "Show the selected session's messages"},
		{"/quit", "Exit"},
	} {
		fmt.Fprintf(w, "  %s\t%s\n", row[0], row[1])
	}
	w.Flush()
	fmt.Fprintln(s.out, DimStyle.Render("Any other input is sent to the selected session."))
}

func (s *Shell) printTabs() {
	sessions := s.ctrl.Sessions()
	selected := s.ctrl.Selected()

	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for i, sess := range sessions {
		marker := " "
		if i == selected {
			marker = "*"
		}
		if session.IsSettings(sess) {
			fmt.Fprintf(w, "%s %d\t%s\t\t\n", marker, i, sess.Title)
			continue
		}
		modelID := sess.ModelID
		if !sess.HasModel() {
			modelID = "-"
		}
		fmt.Fprintf(w, "%s %d\t%s\t%s\t%s\n", marker, i, sess.Label(), modelID, plural(sess.Log().Len(), "message"))
	}
	w.Flush()
}

func (s *Shell) printSettings() {
	fmt.Fprintln(s.out, TitleStyle.Render(session.SettingsTitle))
	if s.settings == nil {
		return
	}
	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for _, key := range config.GetAllKeys() {
		v, err := s.settings.Get(key)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "  %s\t%v\n", key, v)
	}
	w.Flush()
}

func (s *Shell) printModels(ctx context.Context) {
	models := s.ctrl.AvailableModels(ctx)
	if len(models) == 0 {
		fmt.Fprintln(s.out, WarningStyle.Render("No models available. Is Ollama running?"))
		return
	}

	current := s.ctrl.SelectedSession().ModelID
	for _, m := range models {
		marker := " "
		if m == current {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s %s\n", marker, m)
	}
}

func (s *Shell) printHistory() error {
	sel := s.ctrl.SelectedSession()
	if session.IsSettings(sel) {
		return errSettingsSelected
	}
	writeTranscript(s.out, sel.Messages(), terminalWidth(s.out))
	return nil
}

// writeTranscript prints each message under its speaker's name.
func writeTranscript(w io.Writer, msgs []model.Message, width int) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No messages yet."))
		return
	}
	for i, m := range msgs {
		if i > 0 {
			fmt.Fprintln(w, RenderSeparator(min(width, DefaultTerminalWidth)))
		}
		style := UserStyle
		if m.Role == model.RoleAssistant {
			style = AssistantStyle
		}
		fmt.Fprintln(w, style.Render(m.Role.DisplayName()))
		fmt.Fprintln(w, m.Content)
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

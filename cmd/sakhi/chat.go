package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/ashureev/manosakhi/internal/domain"
	"github.com/ashureev/manosakhi/internal/resolver"
)

const historyFileName = "history"

var (
	sakhiStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	noteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
)

func newChatCmd(opts *options) *cobra.Command {
	var (
		plain    bool
		noSave   bool
		wrapCols int
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation. The conversation lives only in
memory and is gone when you quit.

Commands:
  /clear   start over
  /quit    leave (Ctrl-D works too)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, lex, err := opts.newResolver(cmd.Context())
			if err != nil {
				return err
			}

			r := &chatREPL{
				resolver: res,
				out:      cmd.OutOrStdout(),
				logger:   opts.logger(),
				session:  uuid.NewString(),
			}
			if !plain {
				r.render, err = glamour.NewTermRenderer(
					glamour.WithAutoStyle(),
					glamour.WithWordWrap(wrapCols),
				)
				if err != nil {
					return fmt.Errorf("create renderer: %w", err)
				}
			}

			if d := lex.Current().Disclaimer; d != "" {
				fmt.Fprintln(r.out, noteStyle.Render(d))
			}
			if !res.RemoteEnabled() {
				fmt.Fprintln(r.out, noteStyle.Render("No model tokens configured, replies come from local templates."))
			}
			fmt.Fprintln(r.out, noteStyle.Render("Type /quit to leave, /clear to start over."))

			historyPath := ""
			if !noSave {
				historyPath = defaultHistoryPath()
			}
			return r.run(cmd, historyPath)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "print replies without markdown rendering")
	cmd.Flags().BoolVar(&noSave, "no-history", false, "do not read or write the prompt history file")
	cmd.Flags().IntVar(&wrapCols, "wrap", 80, "word wrap width for rendered replies")
	return cmd
}

type chatREPL struct {
	resolver *resolver.Resolver
	render   *glamour.TermRenderer
	out      io.Writer
	logger   *slog.Logger
	session  string
	state    domain.SessionState
}

func (r *chatREPL) run(cmd *cobra.Command, historyPath string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = line.ReadHistory(f)
			_ = f.Close()
		}
		defer r.saveHistory(line, historyPath)
	}

	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch strings.ToLower(input) {
		case "/quit", "/exit":
			return nil
		case "/clear":
			r.state = domain.SessionState{}
			r.session = uuid.NewString()
			fmt.Fprintln(r.out, noteStyle.Render("Conversation cleared."))
			continue
		}

		var reply resolver.Reply
		r.state, reply = r.resolver.Respond(cmd.Context(), r.state, input)
		r.logger.Debug("Reply resolved",
			"session_id", r.session,
			"source", reply.Source,
			"model", reply.Model,
			"category", reply.Category,
			"turns", len(r.state.Transcript),
		)
		r.print(reply)
	}
}

func (r *chatREPL) print(reply resolver.Reply) {
	fmt.Fprintln(r.out, sakhiStyle.Render("sakhi"))
	text := reply.Text
	if r.render != nil {
		if rendered, err := r.render.Render(text); err == nil {
			text = rendered
		} else {
			r.logger.Debug("failed to render reply", "error", err)
		}
	}
	fmt.Fprintln(r.out, strings.TrimRight(text, "\n"))
	fmt.Fprintln(r.out)
}

func (r *chatREPL) saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		r.logger.Debug("failed to create history directory", "error", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		r.logger.Debug("failed to open history file", "error", err)
		return
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		r.logger.Debug("failed to write history", "error", err)
	}
}

// defaultHistoryPath returns the prompt history file, or "" when there is no
// user config directory.
func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "manosakhi", historyFileName)
}

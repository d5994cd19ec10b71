package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/contec/internal/auth"
	"github.com/kalambet/contec/internal/conversation"
	"github.com/kalambet/contec/internal/dialog"
	"github.com/kalambet/contec/internal/training"
)

const chatHelp = `Commands:
  /login          authenticate as trainer
  /logout         sign out (drops a pending question)
  /train <answer> teach the answer to the pending question
  /cancel         skip teaching the pending question
  /help           show this help
Type "quit" to end the conversation.`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var in lineReader
		if term.IsTerminal(int(os.Stdin.Fd())) {
			in = newLinerReader(filepath.Join(a.cfg.Storage.DataDir, "chat_history"))
		} else {
			in = newScanReader(cmd.InOrStdin())
		}
		defer in.Close()

		return runChat(cmd.Context(), in, cmd.OutOrStdout(), a.controller, a.gate)
	},
}

// lineReader is the REPL's input side.
type lineReader interface {
	Prompt(prompt string) (string, error)
	PasswordPrompt(prompt string) (string, error)
	Close() error
}

// linerReader gives line editing and history on a terminal.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader(historyFile string) *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return &linerReader{line: line, historyFile: historyFile}
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	s, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) != "" && !strings.HasPrefix(s, "/train") {
		r.line.AppendHistory(s)
	}
	return s, nil
}

func (r *linerReader) PasswordPrompt(prompt string) (string, error) {
	return r.line.PasswordPrompt(prompt)
}

func (r *linerReader) Close() error {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	return r.line.Close()
}

// scanReader reads piped input one line at a time, with no limit on line
// length. Prompts are not echoed.
type scanReader struct {
	br *bufio.Reader
}

func newScanReader(in io.Reader) *scanReader {
	return &scanReader{br: bufio.NewReader(in)}
}

func (r *scanReader) Prompt(string) (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (r *scanReader) PasswordPrompt(prompt string) (string, error) {
	return r.Prompt(prompt)
}

func (r *scanReader) Close() error { return nil }

// chatUI is one REPL conversation.
type chatUI struct {
	in   lineReader
	out  io.Writer
	ctrl *conversation.Controller
	gate *auth.Gate
	sess *dialog.Session
}

func (c *chatUI) say(text string) {
	fmt.Fprintf(c.out, "%s %s\n", colorize(colorCyan, "contec>"), text)
}

func (c *chatUI) warn(format string, args ...any) {
	fmt.Fprintln(c.out, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func (c *chatUI) authorized() bool { return c.gate.Authorized(c.sess.ID) }

// runChat drives one conversation until quit or end of input.
func runChat(ctx context.Context, in lineReader, out io.Writer, ctrl *conversation.Controller, gate *auth.Gate) error {
	c := &chatUI{in: in, out: out, ctrl: ctrl, gate: gate, sess: dialog.New()}
	defer gate.Logout(c.sess.ID)

	fmt.Fprintln(out, "Ask me anything. Type \"quit\" to leave, /help for commands.")

	for {
		if q, ok := c.sess.PendingQuestion(); ok && c.authorized() {
			fmt.Fprintln(out, colorize(colorBold, dialog.TrainingPrompt(q)))
			fmt.Fprintln(out, "Answer with /train <answer>, or /cancel.")
		}

		line, err := in.Prompt("you> ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		input := strings.TrimSpace(line)
		if strings.HasPrefix(input, "/") {
			c.command(ctx, input)
			continue
		}

		turn, err := ctrl.HandleInput(ctx, c.sess, input)
		if errors.Is(err, conversation.ErrSessionEnded) {
			return nil
		}
		if err != nil {
			return err
		}
		if turn.Warning != nil {
			c.warn("knowledge base unreadable, starting fresh: %v", turn.Warning)
		}
		for _, m := range turn.Replies {
			c.say(m.Text)
		}
		if c.sess.Phase() == dialog.Ended {
			fmt.Fprintln(out, "(run contec chat to start a new conversation)")
			return nil
		}
	}
}

func (c *chatUI) command(ctx context.Context, input string) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	mark := len(c.sess.Transcript)

	switch name {
	case "/help":
		fmt.Fprintln(c.out, chatHelp)
	case "/login":
		if c.authorized() {
			c.say("You are already logged in.")
			return
		}
		pw, err := c.in.PasswordPrompt("password: ")
		if err != nil {
			return
		}
		switch err := c.gate.Authenticate(c.sess.ID, pw); {
		case errors.Is(err, auth.ErrNotConfigured):
			c.warn("Password not configured")
		case errors.Is(err, auth.ErrIncorrectPassword):
			c.warn("Incorrect password")
		case err != nil:
			c.warn("%v", err)
		default:
			c.say("Logged in as trainer.")
		}
	case "/logout":
		c.gate.Logout(c.sess.ID)
		c.ctrl.Logout(c.sess)
		c.say("Logged out.")
	case "/train":
		res, err := c.ctrl.Train(ctx, c.sess, arg, c.authorized())
		if err != nil {
			c.warn("%v", err)
			return
		}
		c.report(res, mark)
	case "/cancel":
		res, err := c.ctrl.Cancel(c.sess, c.authorized())
		if err != nil {
			c.warn("%v", err)
			return
		}
		c.report(res, mark)
	default:
		c.warn("unknown command %s, try /help", name)
	}
}

func (c *chatUI) report(res training.Result, mark int) {
	if res.Warning != nil {
		c.warn("knowledge base was unreadable and has been replaced: %v", res.Warning)
	}
	switch res.Status {
	case training.Committed, training.Cancelled:
		for _, m := range c.sess.Since(mark) {
			c.say(m.Text)
		}
	case training.Unauthorized:
		c.warn("Log in with /login to train me.")
	case training.NothingPending:
		c.warn("There is no question waiting for an answer.")
	case training.EmptyAnswer:
		c.warn("The answer must not be empty.")
	}
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/docchat/internal/keys"
	"github.com/zulandar/docchat/internal/models"
	"github.com/zulandar/docchat/internal/session"
	"golang.org/x/term"
)

func newChatCmd() *cobra.Command {
	var (
		configPath  string
		newConv     bool
		noDocuments bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask a question about the selected documents",
		Long: "Sends a message to the current conversation and prints the reply. A new " +
			"conversation over the selected documents is created on first use. Without a " +
			"message, reads one message per line from stdin, or starts an interactive " +
			"prompt when stdin is a terminal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath, args, newConv, noDocuments)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&newConv, "new", false, "start a new conversation")
	cmd.Flags().BoolVar(&noDocuments, "no-documents", false, "create the conversation without the selected documents")
	return cmd
}

func runChat(cmd *cobra.Command, configPath string, args []string, newConv, noDocuments bool) error {
	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	var docIDs []string
	if !noDocuments {
		sel, err := a.selector()
		if err != nil {
			return err
		}
		docIDs = sel.SelectedDocumentIDs()
	}
	s, err := a.session(docIDs)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Open(cmd.Context()); err != nil {
		return err
	}
	if newConv {
		if err := s.Reset(); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if len(args) > 0 {
		return ask(cmd, s, out, strings.Join(args, " "))
	}
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return runREPL(cmd, s, f)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fmt.Fprintf(out, "> %s\n", line)
		if err := ask(cmd, s, out, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ask submits text and prints the reply once the stream has finished.
func ask(cmd *cobra.Command, s *session.Session, out io.Writer, text string) error {
	if err := s.Submit(cmd.Context(), text); err != nil {
		return err
	}
	err := s.Wait(cmd.Context())
	printReply(out, s.Messages())
	return err
}

// printReply prints the assistant messages that follow the last user message.
func printReply(out io.Writer, msgs []models.Message) {
	start := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleUser {
			start = i + 1
			break
		}
	}
	for _, m := range msgs[start:] {
		if m.Role != models.RoleAssistant {
			continue
		}
		fmt.Fprintln(out, m.Content)
		if m.Status == models.StatusError {
			fmt.Fprintln(out, "(the assistant could not complete this answer)")
		}
	}
}

func printMessages(out io.Writer, msgs []models.Message) {
	for _, m := range msgs {
		ts := ""
		if !m.CreatedAt.IsZero() {
			ts = m.CreatedAt.Local().Format("2006-01-02 15:04") + " "
		}
		fmt.Fprintf(out, "%s[%s] %s\n", ts, m.Role, m.Content)
	}
}

// runREPL reads lines in raw mode so Enter is delivered as a key press to
// the session's submit binding.
func runREPL(cmd *cobra.Command, s *session.Session, in *os.File) error {
	fd := int(in.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("chat: enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{in, cmd.OutOrStdout()}, "> ")

	if id := s.ConversationID(); id != "" {
		fmt.Fprintf(t, "Resuming conversation %s. /history shows earlier messages, /new starts over, /quit exits.\n", id)
	} else {
		fmt.Fprintln(t, "New conversation. /quit exits.")
	}

	bus := keys.NewBus()
	var input string
	detach := s.SubmitKeys(bus, func() string { return input })
	defer detach()

	for {
		line, err := t.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			printMessages(t, s.Messages())
			continue
		case "/new":
			if err := s.Reset(); err != nil {
				fmt.Fprintln(t, err)
			} else {
				fmt.Fprintln(t, "Started a new conversation.")
			}
			continue
		}

		input = line
		bus.Dispatch(keys.Event{Key: keys.Enter})
		err = s.Wait(cmd.Context())
		printReply(t, s.Messages())
		if err != nil {
			fmt.Fprintf(t, "error: %v\n", err)
		}
	}
}

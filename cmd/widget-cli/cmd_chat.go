package main

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"chat-widget/internal/usecase"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation with the agent.

Type a message and press enter. Commands:
  /action <n>   pick the n-th quick action offered last
  /clear        start a new conversation
  /quit         leave`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	r := newRenderer(out)
	r.Render(s.conv.Snapshot())
	unsubscribe := s.conv.Subscribe(r.Render)
	defer unsubscribe()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		var opErr error
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/clear":
			opErr = s.conv.ClearConversation(ctx)
		case isActionCommand(line):
			action, ok := r.Action(actionIndex(line))
			if !ok {
				fmt.Fprintln(out, "  no such action")
				continue
			}
			opErr = s.conv.SubmitAction(ctx, action.ActionCode, action.Label)
		default:
			opErr = s.conv.SubmitUserMessage(ctx, line)
		}
		if opErr != nil {
			var ucErr *usecase.Error
			if !errors.As(opErr, &ucErr) {
				return opErr
			}
			fmt.Fprintf(out, "  %s\n", ucErr.Reason)
		}
	}
	return scanner.Err()
}

// isActionCommand reports whether line is "/action" or "/action <arg>".
// Anything else starting with "/action", such as "/actions", is plain text.
func isActionCommand(line string) bool {
	return line == "/action" || strings.HasPrefix(line, "/action ")
}

// actionIndex returns the 1-based index given to /action, or 0 when the
// argument is missing or not a number.
func actionIndex(line string) int {
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/action")))
	if err != nil {
		return 0
	}
	return n
}

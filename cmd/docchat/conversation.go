package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/docchat/internal/backend"
)

func newConversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Inspect or reset the current conversation",
	}

	cmd.AddCommand(newConversationShowCmd())
	cmd.AddCommand(newConversationResetCmd())
	return cmd
}

func newConversationShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current conversation and its messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			id := a.conversationID()
			if id == "" {
				fmt.Fprintln(out, "No conversation yet. Use 'docchat chat' to start one.")
				return nil
			}

			conv, err := a.client.FetchConversation(cmd.Context(), id)
			var nf *backend.NotFoundError
			if errors.As(err, &nf) {
				fmt.Fprintf(out, "Conversation %s no longer exists on the server.\n", id)
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Conversation: %s\n", id)
			if len(conv.Documents) > 0 {
				fmt.Fprintln(out, "Documents:")
				for _, d := range conv.Documents {
					fmt.Fprintf(out, "  %s %s %s (%s)\n", d.Name, d.DocType, d.Year, d.ID)
				}
			}
			fmt.Fprintf(out, "Messages: %d\n", len(conv.Messages))
			printMessages(out, conv.Messages)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newConversationResetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the current conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			id := a.conversationID()
			s, err := a.session(nil)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Reset(); err != nil {
				return err
			}
			if id == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversation to reset.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot conversation %s\n", id)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

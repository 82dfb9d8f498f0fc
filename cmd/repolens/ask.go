package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"repolens/internal/chat"
)

func newAskCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <repository-url> <question...>",
		Short: "Ask a question about a stored analysis",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := root.context(cmd)
			defer cancel()

			svc, err := buildServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			ans, err := svc.Chat.Ask(ctx, chat.Question{
				UserID:  root.user,
				Role:    root.role,
				RepoURL: args[0],
				Text:    strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
			for _, ref := range ans.References {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", ref)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d question(s) left\n", ans.Remaining)
			return nil
		},
	}
}

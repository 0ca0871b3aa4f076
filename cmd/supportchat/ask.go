package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/holon-run/supportchat/pkg/chat"
	"github.com/holon-run/supportchat/pkg/serve"
)

var (
	askThread string
	askJSON   bool
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message to the assistant and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		if err := cfg.Validate(); err != nil {
			return err
		}
		transport, err := newTransport(cfg)
		if err != nil {
			return err
		}
		orch, err := newOrchestrator(cfg, transport)
		if err != nil {
			return err
		}

		reply, err := orch.HandleTurn(cmd.Context(), chat.Turn{
			Message:  strings.Join(args, " "),
			ThreadID: askThread,
		})
		if err != nil {
			return errors.New(serve.UserMessage(serve.StatusFor(err), err))
		}
		verdict := newPolicy(cfg).Apply(reply)

		out := cmd.OutOrStdout()
		if askJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(serve.ChatResponse{
				Message:       reply.Text,
				ThreadID:      reply.ThreadID,
				Timestamp:     reply.Timestamp,
				SuggestTicket: verdict.SuggestTicket,
				OffTopic:      verdict.OffTopic,
			})
		}
		fmt.Fprintln(out, reply.Text)
		fmt.Fprintf(out, "thread: %s\n", reply.ThreadID)
		if verdict.SuggestTicket {
			fmt.Fprintln(out, "hint: run 'supportchat ticket create' to reach the support team")
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askThread, "thread", "", "Continue an existing thread")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the reply as JSON")
	rootCmd.AddCommand(askCmd)
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/holon-run/supportchat/pkg/serve"
	"github.com/holon-run/supportchat/pkg/ticket"
)

var (
	ticketEmail string
	ticketIssue string
	ticketJSON  bool
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Create and look up support tickets",
}

var ticketCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a support ticket",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(appConfig)
		if err != nil {
			return err
		}
		defer st.Close()

		t, err := st.tickets.Create(cmd.Context(), ticketEmail, ticketIssue)
		if err != nil {
			return ticketError(err)
		}
		return printTicket(cmd, t)
	},
}

var ticketGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a support ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(appConfig)
		if err != nil {
			return err
		}
		defer st.Close()

		t, err := st.tickets.Get(cmd.Context(), args[0])
		if err != nil {
			return ticketError(err)
		}
		return printTicket(cmd, t)
	},
}

func ticketError(err error) error {
	if ticket.IsValidation(err) || errors.Is(err, ticket.ErrNotFound) {
		return errors.New(serve.UserMessage(serve.StatusFor(err), err))
	}
	return err
}

func printTicket(cmd *cobra.Command, t *ticket.Ticket) error {
	out := cmd.OutOrStdout()
	if ticketJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	}
	fmt.Fprintf(out, "ticket %s %s\n", t.ID, t.Status)
	if t.URL != "" {
		fmt.Fprintf(out, "url: %s\n", t.URL)
	}
	return nil
}

func init() {
	ticketCreateCmd.Flags().StringVar(&ticketEmail, "email", "", "Contact email address")
	ticketCreateCmd.Flags().StringVar(&ticketIssue, "issue", "", "Description of the issue")
	ticketCmd.PersistentFlags().BoolVar(&ticketJSON, "json", false, "Print the ticket as JSON")
	ticketCmd.AddCommand(ticketCreateCmd, ticketGetCmd)
	rootCmd.AddCommand(ticketCmd)
}

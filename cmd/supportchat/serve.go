package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/holon-run/supportchat/pkg/assistant"
	holonlog "github.com/holon-run/supportchat/pkg/log"
	"github.com/holon-run/supportchat/pkg/preflight"
	"github.com/holon-run/supportchat/pkg/serve"
)

var (
	serveAddr          string
	serveRelay         bool
	serveSkipPreflight bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the support chat HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		if cmd.Flags().Changed("addr") {
			cfg.Serve.Addr = serveAddr
		}
		if cmd.Flags().Changed("relay") {
			cfg.Serve.Relay = serveRelay
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		pc := preflightConfig(cfg, false)
		pc.Skip = serveSkipPreflight
		if err := preflight.NewChecker(pc).Run(cmd.Context()); err != nil {
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
		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		var relay assistant.Transport
		if cfg.Serve.Relay {
			relay = transport
		}
		srv, err := serve.New(serve.Config{
			Addr:             cfg.Serve.Addr,
			Chat:             orch,
			Policy:           newPolicy(cfg),
			Sessions:         st.sessions,
			Tickets:          st.tickets,
			Relay:            relay,
			RelayAssistantID: assistantID(cfg),
			RelayToken:       cfg.Serve.RelayToken,
			AllowedOrigins:   cfg.Serve.AllowedOrigins,
			ShutdownTimeout:  cfg.Serve.ShutdownTimeout,
			Redactor:         newRedactor(cfg),
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		holonlog.Info("starting support chat", "transport", cfg.Assistant.Transport,
			"tickets", cfg.Tickets.Backend, "db", cfg.Storage.Path)
		if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", serve.DefaultAddr, "Listen address")
	serveCmd.Flags().BoolVar(&serveRelay, "relay", false, "Expose the /assistant relay routes")
	serveCmd.Flags().BoolVar(&serveSkipPreflight, "skip-preflight", false, "Start without checking credentials and storage")
	rootCmd.AddCommand(serveCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/holon-run/supportchat/pkg/config"
	"github.com/holon-run/supportchat/pkg/preflight"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/"

var doctorNetwork bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check credentials, storage and connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		results := preflight.NewChecker(preflightConfig(appConfig, doctorNetwork)).Results(cmd.Context())

		failed := 0
		out := cmd.OutOrStdout()
		for _, r := range results {
			fmt.Fprintf(out, "%-5s %-13s %s\n", r.Level, r.Name, r.Message)
			if r.Level == preflight.LevelError {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		return nil
	},
}

func preflightConfig(cfg *config.Config, probe bool) preflight.Config {
	a := cfg.Assistant
	pc := preflight.Config{
		Transport:          a.Transport,
		APIKey:             a.APIKey,
		ProxyURL:           a.ProxyURL,
		AssistantID:        assistantID(cfg),
		DatabasePath:       cfg.Storage.Path,
		RequireGitHubToken: cfg.Tickets.Backend == config.TicketsGitHub,
		GitHubToken:        cfg.Tickets.GitHub.Token,
	}
	if probe {
		switch a.Transport {
		case config.TransportOpenAI:
			pc.Endpoint = defaultOpenAIEndpoint
			if a.BaseURL != "" {
				pc.Endpoint = a.BaseURL
			}
		case config.TransportProxy:
			pc.Endpoint = a.ProxyURL
		}
	}
	return pc
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorNetwork, "network", false, "Also probe the assistant endpoint")
	rootCmd.AddCommand(doctorCmd)
}

package main

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/holon-run/supportchat/pkg/assistant"
	"github.com/holon-run/supportchat/pkg/chat"
	"github.com/holon-run/supportchat/pkg/config"
	holonlog "github.com/holon-run/supportchat/pkg/log"
	"github.com/holon-run/supportchat/pkg/logs/redact"
	"github.com/holon-run/supportchat/pkg/retry"
	"github.com/holon-run/supportchat/pkg/session"
	"github.com/holon-run/supportchat/pkg/storage"
	"github.com/holon-run/supportchat/pkg/ticket"
)

// mockAssistantID is used with the mock transport when no id is configured.
const mockAssistantID = "asst_mock"

func newTransport(cfg *config.Config) (assistant.Transport, error) {
	a := cfg.Assistant
	switch a.Transport {
	case config.TransportOpenAI:
		return assistant.NewOpenAITransport(assistant.OpenAIConfig{
			APIKey:       a.APIKey,
			Organization: a.Organization,
			BaseURL:      a.BaseURL,
			Timeout:      a.RequestTimeout,
		})
	case config.TransportProxy:
		return assistant.NewProxyTransport(assistant.ProxyConfig{
			BaseURL: a.ProxyURL,
			Token:   a.ProxyToken,
			Timeout: a.RequestTimeout,
		})
	case config.TransportMock:
		return &assistant.MockTransport{}, nil
	default:
		return nil, fmt.Errorf("unknown assistant transport %q", a.Transport)
	}
}

func assistantID(cfg *config.Config) string {
	if cfg.Assistant.AssistantID == "" && cfg.Assistant.Transport == config.TransportMock {
		return mockAssistantID
	}
	return cfg.Assistant.AssistantID
}

func newClient(cfg *config.Config, transport assistant.Transport) (*assistant.Client, error) {
	a := cfg.Assistant
	return assistant.NewClient(assistant.Config{
		Transport:   transport,
		AssistantID: assistantID(cfg),
		Retry: retry.Options{
			MaxAttempts:       a.Retry.MaxAttempts,
			InitialDelay:      a.Retry.InitialDelay,
			BackoffMultiplier: a.Retry.BackoffMultiplier,
			MaxDelay:          a.Retry.MaxDelay,
		},
		PollInterval:    a.PollInterval,
		MaxPollAttempts: a.MaxPollAttempts,
	})
}

func newOrchestrator(cfg *config.Config, transport assistant.Transport) (*chat.Orchestrator, error) {
	client, err := newClient(cfg, transport)
	if err != nil {
		return nil, err
	}
	return chat.New(chat.Config{
		Assistant:       client,
		MaxPollAttempts: cfg.Assistant.MaxPollAttempts,
		MaxInputTokens:  cfg.Chat.MaxInputTokens,
		GuardThreads:    cfg.Chat.GuardThreads,
	})
}

func newPolicy(cfg *config.Config) chat.Policy {
	p := cfg.Chat.Policy
	if !p.Enabled {
		return chat.Annotate(nil)
	}
	return chat.NewKeywordPolicy(chat.KeywordPolicy{
		OffTopicKeywords:   p.OffTopicKeywords,
		ProductKeyword:     p.ProductKeyword,
		EscalationKeywords: p.EscalationKeywords,
		RedirectMessage:    p.RedirectMessage,
	})
}

func newRedactor(cfg *config.Config) *redact.Redactor {
	return redact.New(redact.Config{Mode: redact.ParseMode(cfg.Log.Redact)})
}

// stores holds the persistence opened for a command.
type stores struct {
	db       *gorm.DB
	sessions *session.Store
	tickets  ticket.Store
}

func openStores(cfg *config.Config) (*stores, error) {
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	s := &stores{db: db}

	s.sessions, err = session.NewStore(db, session.Config{WelcomeMessage: cfg.Chat.WelcomeMessage})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.tickets, err = newTicketStore(cfg, db)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newTicketStore(cfg *config.Config, db *gorm.DB) (ticket.Store, error) {
	switch cfg.Tickets.Backend {
	case config.TicketsGitHub:
		gh := cfg.Tickets.GitHub
		return ticket.NewGitHubStore(ticket.GitHubConfig{
			Token:   gh.Token,
			Owner:   gh.Owner,
			Repo:    gh.Repo,
			Labels:  gh.Labels,
			BaseURL: gh.BaseURL,
		})
	case config.TicketsDB, "":
		return ticket.NewDBStore(db)
	default:
		return nil, fmt.Errorf("unknown ticket backend %q", cfg.Tickets.Backend)
	}
}

func (s *stores) Close() {
	if err := storage.Close(s.db); err != nil {
		holonlog.Warn("failed to close database", "error", err)
	}
}

// Package config loads supportchat settings from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	holonlog "github.com/holon-run/supportchat/pkg/log"
	"github.com/holon-run/supportchat/pkg/logs/redact"
)

// DefaultFile is read when no --config flag is given and it exists.
const DefaultFile = "supportchat.yaml"

const (
	TransportOpenAI = "openai"
	TransportProxy  = "proxy"
	TransportMock   = "mock"

	TicketsDB     = "db"
	TicketsGitHub = "github"
)

type Config struct {
	Assistant AssistantConfig `yaml:"assistant"`
	Chat      ChatConfig      `yaml:"chat"`
	Serve     ServeConfig     `yaml:"serve"`
	Storage   StorageConfig   `yaml:"storage"`
	Tickets   TicketsConfig   `yaml:"tickets"`
	Log       LogConfig       `yaml:"log"`
}

type AssistantConfig struct {
	Transport       string        `yaml:"transport"`
	APIKey          string        `yaml:"api_key,omitempty"`
	Organization    string        `yaml:"organization,omitempty"`
	AssistantID     string        `yaml:"assistant_id,omitempty"`
	BaseURL         string        `yaml:"base_url,omitempty"`
	ProxyURL        string        `yaml:"proxy_url,omitempty"`
	ProxyToken      string        `yaml:"proxy_token,omitempty"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"`
	Retry           RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxDelay          time.Duration `yaml:"max_delay,omitempty"`
}

type ChatConfig struct {
	// MaxInputTokens rejects longer user messages; 0 disables the check.
	MaxInputTokens int          `yaml:"max_input_tokens"`
	GuardThreads   bool         `yaml:"guard_threads"`
	WelcomeMessage string       `yaml:"welcome_message"`
	Policy         PolicyConfig `yaml:"policy"`
}

type PolicyConfig struct {
	Enabled            bool     `yaml:"enabled"`
	OffTopicKeywords   []string `yaml:"off_topic_keywords,omitempty"`
	ProductKeyword     string   `yaml:"product_keyword,omitempty"`
	EscalationKeywords []string `yaml:"escalation_keywords,omitempty"`
	RedirectMessage    string   `yaml:"redirect_message,omitempty"`
}

type ServeConfig struct {
	Addr            string        `yaml:"addr"`
	Relay           bool          `yaml:"relay"`
	RelayToken      string        `yaml:"relay_token,omitempty"`
	AllowedOrigins  []string      `yaml:"allowed_origins,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type TicketsConfig struct {
	Backend string       `yaml:"backend"`
	GitHub  GitHubConfig `yaml:"github,omitempty"`
}

type GitHubConfig struct {
	Token   string   `yaml:"token,omitempty"`
	Owner   string   `yaml:"owner,omitempty"`
	Repo    string   `yaml:"repo,omitempty"`
	Labels  []string `yaml:"labels,omitempty"`
	BaseURL string   `yaml:"base_url,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Redact string `yaml:"redact"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Assistant: AssistantConfig{
			Transport:       TransportOpenAI,
			RequestTimeout:  60 * time.Second,
			PollInterval:    time.Second,
			MaxPollAttempts: 30,
			Retry: RetryConfig{
				MaxAttempts:       3,
				InitialDelay:      time.Second,
				BackoffMultiplier: 2,
			},
		},
		Chat: ChatConfig{
			GuardThreads:   true,
			WelcomeMessage: "Hi! I'm your Xumo Play support assistant. How can I help you today?",
			Policy: PolicyConfig{
				Enabled: true,
				OffTopicKeywords: []string{
					"netflix", "hulu", "disney+", "peacock", "max", "paramount+",
					"fox news", "subscription", "account login", "password reset",
				},
				ProductKeyword:     "Xumo Play",
				EscalationKeywords: []string{"create a ticket", "contact support", "support team"},
				RedirectMessage: "I can only help with questions about the Xumo Play app. " +
					"For other services, please contact their support directly.",
			},
		},
		Serve: ServeConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{Path: "data/supportchat.db"},
		Tickets: TicketsConfig{Backend: TicketsDB},
		Log: LogConfig{
			Level:  "info",
			Format: holonlog.FormatConsole,
			Redact: string(redact.ModeBasic),
		},
	}
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load reads path over the defaults and applies environment overrides. An
// empty path reads DefaultFile when present.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("OPENAI_API_KEY", &c.Assistant.APIKey)
	str("OPENAI_ORGANIZATION_ID", &c.Assistant.Organization)
	str("OPENAI_ASSISTANT_ID", &c.Assistant.AssistantID)
	str("OPENAI_BASE_URL", &c.Assistant.BaseURL)
	str("SUPPORTCHAT_TRANSPORT", &c.Assistant.Transport)
	str("SUPPORTCHAT_PROXY_URL", &c.Assistant.ProxyURL)
	str("SUPPORTCHAT_PROXY_TOKEN", &c.Assistant.ProxyToken)
	str("SUPPORTCHAT_ADDR", &c.Serve.Addr)
	str("SUPPORTCHAT_RELAY_TOKEN", &c.Serve.RelayToken)
	str("SUPPORTCHAT_DB", &c.Storage.Path)
	str("SUPPORTCHAT_TICKETS", &c.Tickets.Backend)
	str("GITHUB_TOKEN", &c.Tickets.GitHub.Token)
	str("SUPPORTCHAT_LOG_LEVEL", &c.Log.Level)
	str("SUPPORTCHAT_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("SUPPORTCHAT_MAX_POLL_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SUPPORTCHAT_MAX_POLL_ATTEMPTS %q: %w", v, err)
		}
		c.Assistant.MaxPollAttempts = n
	}
	if v, ok := lookup("SUPPORTCHAT_RELAY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SUPPORTCHAT_RELAY %q: %w", v, err)
		}
		c.Serve.Relay = b
	}
	return nil
}

// Validate checks values that would otherwise fail late at request time.
// A missing assistant id is not checked here; it surfaces as a configuration
// error on the first run.
func (c *Config) Validate() error {
	var errs []error
	a := c.Assistant
	switch a.Transport {
	case TransportOpenAI:
		if a.APIKey == "" {
			errs = append(errs, errors.New("assistant.api_key (OPENAI_API_KEY) is required for the openai transport"))
		}
	case TransportProxy:
		if a.ProxyURL == "" {
			errs = append(errs, errors.New("assistant.proxy_url is required for the proxy transport"))
		}
	case TransportMock:
	default:
		errs = append(errs, fmt.Errorf("unknown assistant.transport %q (want openai, proxy or mock)", a.Transport))
	}
	if a.MaxPollAttempts < 1 {
		errs = append(errs, fmt.Errorf("assistant.max_poll_attempts must be >= 1, got %d", a.MaxPollAttempts))
	}
	if a.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("assistant.poll_interval must be positive, got %s", a.PollInterval))
	}
	if a.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("assistant.retry.max_attempts must be >= 1, got %d", a.Retry.MaxAttempts))
	}
	if a.Retry.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("assistant.retry.initial_delay must not be negative"))
	}
	if a.Retry.BackoffMultiplier <= 1 {
		errs = append(errs, fmt.Errorf("assistant.retry.backoff_multiplier must be > 1, got %g", a.Retry.BackoffMultiplier))
	}
	if a.Retry.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("assistant.retry.max_delay must not be negative"))
	}
	if c.Chat.MaxInputTokens < 0 {
		errs = append(errs, fmt.Errorf("chat.max_input_tokens must not be negative"))
	}

	switch c.Tickets.Backend {
	case TicketsDB:
	case TicketsGitHub:
		gh := c.Tickets.GitHub
		if gh.Token == "" || gh.Owner == "" || gh.Repo == "" {
			errs = append(errs, errors.New("tickets.github requires token (GITHUB_TOKEN), owner and repo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tickets.backend %q (want db or github)", c.Tickets.Backend))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}

	if _, ok := holonlog.ParseLevel(c.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case holonlog.FormatConsole, holonlog.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q (want console or json)", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy safe to print, with credentials masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Assistant.APIKey = redact.Secret(c.Assistant.APIKey)
	out.Assistant.ProxyToken = redact.Secret(c.Assistant.ProxyToken)
	out.Serve.RelayToken = redact.Secret(c.Serve.RelayToken)
	out.Tickets.GitHub.Token = redact.Secret(c.Tickets.GitHub.Token)
	return &out
}

// YAML renders the configuration.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return strings.TrimRight(string(data), "\n") + "\n", nil
}

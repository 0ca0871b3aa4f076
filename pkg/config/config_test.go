package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultIsValidWithKey(t *testing.T) {
	cfg := Default()
	cfg.Assistant.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if cfg.Assistant.MaxPollAttempts != 30 || cfg.Assistant.PollInterval != time.Second {
		t.Errorf("poll defaults = %d/%s", cfg.Assistant.MaxPollAttempts, cfg.Assistant.PollInterval)
	}
	if cfg.Assistant.Retry.MaxAttempts != 3 || cfg.Assistant.Retry.InitialDelay != time.Second || cfg.Assistant.Retry.BackoffMultiplier != 2 {
		t.Errorf("retry defaults = %+v", cfg.Assistant.Retry)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "supportchat.yaml", `
assistant:
  transport: proxy
  proxy_url: http://relay.internal:9000
  poll_interval: 250ms
  max_poll_attempts: 5
  retry:
    initial_delay: 2s
serve:
  addr: ":9090"
  relay: true
tickets:
  backend: github
  github:
    owner: acme
    repo: support
log:
  level: debug
  format: json
`)
	t.Setenv("GITHUB_TOKEN", "ghp_from_env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Assistant.Transport != TransportProxy || cfg.Assistant.ProxyURL != "http://relay.internal:9000" {
		t.Errorf("assistant = %+v", cfg.Assistant)
	}
	if cfg.Assistant.PollInterval != 250*time.Millisecond || cfg.Assistant.MaxPollAttempts != 5 {
		t.Errorf("poll = %s/%d", cfg.Assistant.PollInterval, cfg.Assistant.MaxPollAttempts)
	}
	if cfg.Assistant.Retry.InitialDelay != 2*time.Second || cfg.Assistant.Retry.MaxAttempts != 3 {
		t.Errorf("retry = %+v, want file value merged over defaults", cfg.Assistant.Retry)
	}
	if cfg.Serve.Addr != ":9090" || !cfg.Serve.Relay {
		t.Errorf("serve = %+v", cfg.Serve)
	}
	if cfg.Tickets.GitHub.Token != "ghp_from_env" {
		t.Errorf("github token = %q", cfg.Tickets.GitHub.Token)
	}
	if !cfg.Chat.Policy.Enabled || cfg.Chat.Policy.ProductKeyword != "Xumo Play" {
		t.Errorf("policy defaults lost: %+v", cfg.Chat.Policy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}

	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") without default file = %v", err)
	}
	if cfg.Serve.Addr != ":8080" {
		t.Errorf("Addr = %q, want default", cfg.Serve.Addr)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "assistant: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_ASSISTANT_ID", "asst_env")
	t.Setenv("OPENAI_ORGANIZATION_ID", "org_env")
	t.Setenv("SUPPORTCHAT_ADDR", "127.0.0.1:7000")
	t.Setenv("SUPPORTCHAT_MAX_POLL_ATTEMPTS", "12")
	t.Setenv("SUPPORTCHAT_RELAY", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	a := cfg.Assistant
	if a.APIKey != "sk-env" || a.AssistantID != "asst_env" || a.Organization != "org_env" {
		t.Errorf("assistant = %+v", a)
	}
	if cfg.Serve.Addr != "127.0.0.1:7000" || !cfg.Serve.Relay || a.MaxPollAttempts != 12 {
		t.Errorf("overrides not applied: %+v %+v", cfg.Serve, a)
	}

	t.Setenv("SUPPORTCHAT_MAX_POLL_ATTEMPTS", "many")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "SUPPORTCHAT_MAX_POLL_ATTEMPTS") {
		t.Errorf("Load with bad int = %v", err)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	path := writeFile(t, ".env", "SUPPORTCHAT_TEST_FROM_DOTENV=loaded\nSUPPORTCHAT_TEST_PRESET=file\n")
	t.Setenv("SUPPORTCHAT_TEST_PRESET", "env")
	t.Cleanup(func() { os.Unsetenv("SUPPORTCHAT_TEST_FROM_DOTENV") })

	if err := LoadEnvFiles(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnvFiles failed: %v", err)
	}
	if got := os.Getenv("SUPPORTCHAT_TEST_FROM_DOTENV"); got != "loaded" {
		t.Errorf("dotenv value = %q", got)
	}
	if got := os.Getenv("SUPPORTCHAT_TEST_PRESET"); got != "env" {
		t.Errorf("preset value overridden: %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing api key", func(c *Config) { c.Assistant.APIKey = "" }, "OPENAI_API_KEY"},
		{"proxy without url", func(c *Config) { c.Assistant.Transport = TransportProxy }, "proxy_url"},
		{"mock needs nothing", func(c *Config) { c.Assistant.Transport = TransportMock; c.Assistant.APIKey = "" }, ""},
		{"unknown transport", func(c *Config) { c.Assistant.Transport = "grpc" }, "unknown assistant.transport"},
		{"zero poll attempts", func(c *Config) { c.Assistant.MaxPollAttempts = 0 }, "max_poll_attempts"},
		{"zero retry attempts", func(c *Config) { c.Assistant.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"shrinking backoff", func(c *Config) { c.Assistant.Retry.BackoffMultiplier = 0.5 }, "backoff_multiplier"},
		{"flat backoff", func(c *Config) { c.Assistant.Retry.BackoffMultiplier = 1 }, "backoff_multiplier"},
		{"github without repo", func(c *Config) { c.Tickets.Backend = TicketsGitHub; c.Tickets.GitHub.Token = "t" }, "tickets.github"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Assistant.APIKey = "sk-test"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRedactedYAML(t *testing.T) {
	cfg := Default()
	cfg.Assistant.APIKey = "sk-proj-abcdefgh1234"
	cfg.Tickets.GitHub.Token = "ghp_secretvalue9876"

	out, err := cfg.Redacted().YAML()
	if err != nil {
		t.Fatalf("YAML failed: %v", err)
	}
	if strings.Contains(out, "abcdefgh") || strings.Contains(out, "secretvalue") {
		t.Errorf("secrets leaked:\n%s", out)
	}
	if !strings.Contains(out, "***REDACTED***1234") {
		t.Errorf("masked key missing:\n%s", out)
	}
	if cfg.Assistant.APIKey != "sk-proj-abcdefgh1234" {
		t.Error("Redacted modified the original")
	}
}

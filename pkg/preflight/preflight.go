// Package preflight checks that the configured environment can serve
// conversations before the server starts accepting them.
package preflight

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	holonlog "github.com/holon-run/supportchat/pkg/log"
)

// CheckLevel represents the severity level of a preflight check
type CheckLevel int

const (
	// LevelError indicates a critical failure that prevents serving
	LevelError CheckLevel = iota
	// LevelWarn indicates a problem that only shows up on some requests
	LevelWarn
	// LevelInfo indicates informational output
	LevelInfo
)

func (l CheckLevel) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	default:
		return "ok"
	}
}

// CheckResult represents the result of a single preflight check
type CheckResult struct {
	Name    string     // Check name
	Level   CheckLevel // Severity level
	Message string     // Human-readable message
	Error   error      // Underlying error (if any)
}

// Check represents a single preflight check
type Check interface {
	// Name returns the check name
	Name() string
	// Run executes the check and returns a CheckResult
	Run(ctx context.Context) CheckResult
}

// Checker runs a collection of preflight checks
type Checker struct {
	checks  []Check
	skipped bool
	quiet   bool
}

// Config configures the preflight checker
type Config struct {
	// Skip skips all preflight checks
	Skip bool
	// Quiet suppresses info-level messages
	Quiet bool
	// Transport is the assistant transport name: openai, proxy or mock.
	Transport   string
	APIKey      string
	ProxyURL    string
	AssistantID string
	// DatabasePath is checked for writability when set.
	DatabasePath string
	// RequireGitHubToken checks GitHubToken, for the github ticket backend.
	RequireGitHubToken bool
	GitHubToken        string
	// Endpoint, when set, is probed for reachability.
	Endpoint string
}

// NewChecker creates a new preflight checker with the given configuration
func NewChecker(cfg Config) *Checker {
	c := &Checker{
		skipped: cfg.Skip,
		quiet:   cfg.Quiet,
	}

	c.checks = append(c.checks,
		&CredentialCheck{Transport: cfg.Transport, APIKey: cfg.APIKey, ProxyURL: cfg.ProxyURL},
		&AssistantIDCheck{ID: cfg.AssistantID, Transport: cfg.Transport},
	)
	if cfg.DatabasePath != "" {
		c.checks = append(c.checks, &DatabaseCheck{Path: cfg.DatabasePath})
	}
	if cfg.RequireGitHubToken {
		c.checks = append(c.checks, &GitHubTokenCheck{Token: cfg.GitHubToken})
	}
	if cfg.Endpoint != "" {
		c.checks = append(c.checks, &NetworkCheck{URL: cfg.Endpoint})
	}

	return c
}

// Results runs every registered check and returns their results in order.
func (c *Checker) Results(ctx context.Context) []CheckResult {
	results := make([]CheckResult, 0, len(c.checks))
	for _, check := range c.checks {
		results = append(results, check.Run(ctx))
	}
	return results
}

// Run executes all registered checks and returns an error if any critical checks fail
func (c *Checker) Run(ctx context.Context) error {
	if c.skipped {
		holonlog.Info("preflight checks skipped")
		return nil
	}

	holonlog.Progress("running preflight checks")

	var errs []string
	warnings := 0
	for _, result := range c.Results(ctx) {
		switch result.Level {
		case LevelError:
			holonlog.Error("preflight check failed", "check", result.Name, "message", result.Message)
			errs = append(errs, fmt.Sprintf("%s: %s", result.Name, result.Message))
		case LevelWarn:
			holonlog.Warn("preflight check warning", "check", result.Name, "message", result.Message)
			warnings++
		case LevelInfo:
			if !c.quiet {
				holonlog.Info("preflight check", "check", result.Name, "message", result.Message)
			}
		}
	}

	if warnings > 0 {
		holonlog.Info("preflight warnings", "count", warnings)
	}
	if len(errs) > 0 {
		return fmt.Errorf("preflight checks failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	holonlog.Progress("preflight checks passed")
	return nil
}

// CredentialCheck checks that the selected transport has what it needs to
// authenticate.
type CredentialCheck struct {
	Transport string
	APIKey    string
	ProxyURL  string
}

func (c *CredentialCheck) Name() string {
	return "credentials"
}

func (c *CredentialCheck) Run(ctx context.Context) CheckResult {
	switch c.Transport {
	case "openai":
		if c.APIKey == "" {
			return CheckResult{
				Name:    c.Name(),
				Level:   LevelError,
				Message: "OPENAI_API_KEY is not set",
			}
		}
		return CheckResult{Name: c.Name(), Level: LevelInfo, Message: "OpenAI API key is set"}
	case "proxy":
		if c.ProxyURL == "" {
			return CheckResult{
				Name:    c.Name(),
				Level:   LevelError,
				Message: "proxy transport selected without a proxy URL",
			}
		}
		return CheckResult{Name: c.Name(), Level: LevelInfo, Message: fmt.Sprintf("relaying through %s", c.ProxyURL)}
	case "mock":
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelWarn,
			Message: "mock transport selected; replies are canned",
		}
	default:
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("unknown transport %q", c.Transport),
		}
	}
}

// AssistantIDCheck reports a missing assistant id. Threads can still be
// created without one, but every run fails unless a relay picks the
// assistant.
type AssistantIDCheck struct {
	ID        string
	Transport string
}

func (c *AssistantIDCheck) Name() string {
	return "assistant-id"
}

func (c *AssistantIDCheck) Run(ctx context.Context) CheckResult {
	if c.ID == "" && c.Transport == "proxy" {
		return CheckResult{Name: c.Name(), Level: LevelInfo, Message: "assistant chosen by the relay"}
	}
	if c.ID == "" {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelWarn,
			Message: "OPENAI_ASSISTANT_ID is not set; every run will fail",
		}
	}
	return CheckResult{Name: c.Name(), Level: LevelInfo, Message: fmt.Sprintf("assistant %s", c.ID)}
}

// DatabaseCheck checks that the database directory exists or can be created,
// and is writable.
type DatabaseCheck struct {
	Path string
}

func (c *DatabaseCheck) Name() string {
	return "database"
}

func (c *DatabaseCheck) Run(ctx context.Context) CheckResult {
	if c.Path == ":memory:" {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelWarn,
			Message: "in-memory database; sessions and tickets are lost on restart",
		}
	}

	absPath, err := filepath.Abs(c.Path)
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("failed to resolve database path: %s", c.Path),
			Error:   err,
		}
	}
	dir := filepath.Dir(absPath)

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0755); err != nil {
			return CheckResult{
				Name:    c.Name(),
				Level:   LevelError,
				Message: fmt.Sprintf("cannot create database directory: %s", dir),
				Error:   err,
			}
		}
	case err != nil:
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("cannot access database directory: %s", dir),
			Error:   err,
		}
	case !info.IsDir():
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("database directory is not a directory: %s", dir),
			Error:   fmt.Errorf("not a directory"),
		}
	}

	// Check if directory is writable by creating a temporary file
	testFile := filepath.Join(dir, fmt.Sprintf(".supportchat-write-test-%d", os.Getpid()))
	f, err := os.Create(testFile)
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("database directory is not writable: %s", dir),
			Error:   err,
		}
	}
	f.Close()
	_ = os.Remove(testFile)

	return CheckResult{
		Name:    c.Name(),
		Level:   LevelInfo,
		Message: fmt.Sprintf("database is writable: %s", absPath),
	}
}

// GitHubTokenCheck checks that a token is available for the GitHub ticket
// backend.
type GitHubTokenCheck struct {
	Token string
}

func (c *GitHubTokenCheck) Name() string {
	return "github-token"
}

func (c *GitHubTokenCheck) Run(ctx context.Context) CheckResult {
	if c.Token == "" {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: "GITHUB_TOKEN is required for the github ticket backend",
		}
	}
	return CheckResult{Name: c.Name(), Level: LevelInfo, Message: "GitHub token is set"}
}

// NetworkCheck probes the assistant endpoint.
// This is best-effort: any HTTP answer, even 401 or 404, proves reachability.
type NetworkCheck struct {
	URL    string
	Client *http.Client
}

func (c *NetworkCheck) Name() string {
	return "network"
}

func (c *NetworkCheck) Run(ctx context.Context) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, c.URL, nil)
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelWarn,
			Message: "failed to create network check request",
			Error:   err,
		}
	}

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelWarn,
			Message: fmt.Sprintf("assistant endpoint %s is unreachable", c.URL),
			Error:   err,
		}
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		holonlog.Debug("failed to drain response body", "error", err)
	}

	if resp.StatusCode >= 500 {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelWarn,
			Message: fmt.Sprintf("assistant endpoint returned status %d", resp.StatusCode),
			Error:   fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Level:   LevelInfo,
		Message: fmt.Sprintf("assistant endpoint %s is reachable", c.URL),
	}
}

package assistant

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/holon-run/supportchat/pkg/retry"
)

const (
	defaultPollInterval    = 1 * time.Second
	defaultMaxPollAttempts = 30
)

// Config configures a Client.
type Config struct {
	Transport   Transport
	AssistantID string
	// Retry wraps every remote call. Zero fields take retry defaults; 429 is
	// added to RetryableStatus when the list is empty.
	Retry           retry.Options
	PollInterval    time.Duration
	MaxPollAttempts int
	// Sleep is used between polls; defaults to retry.Sleep.
	Sleep retry.SleepFunc
}

// Client issues the assistant operations through a Transport, retrying each
// call and normalizing failures into *Error.
type Client struct {
	transport       Transport
	assistantID     string
	requireID       bool
	retry           retry.Options
	pollInterval    time.Duration
	maxPollAttempts int
	sleep           retry.SleepFunc
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Transport == nil {
		return nil, errors.New("assistant transport is required")
	}
	opts := cfg.Retry
	if len(opts.RetryableStatus) == 0 {
		opts.RetryableStatus = []int{http.StatusTooManyRequests}
	}
	c := &Client{
		transport:       cfg.Transport,
		assistantID:     cfg.AssistantID,
		requireID:       !resolvesAssistant(cfg.Transport),
		retry:           opts,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
		sleep:           cfg.Sleep,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.maxPollAttempts <= 0 {
		c.maxPollAttempts = defaultMaxPollAttempts
	}
	if c.sleep == nil {
		c.sleep = retry.Sleep
	}
	return c, nil
}

// AssistantResolver is implemented by transports whose far end picks the
// assistant when a run is created without one.
type AssistantResolver interface {
	ResolvesAssistant() bool
}

func resolvesAssistant(t Transport) bool {
	r, ok := t.(AssistantResolver)
	return ok && r.ResolvesAssistant()
}

// CreateThread creates a new conversation thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	id, err := retry.Do(ctx, c.transport.CreateThread, c.retry)
	if err != nil {
		return "", wrap("failed to create thread", err)
	}
	return id, nil
}

// PostMessage appends a user message to the thread.
func (c *Client) PostMessage(ctx context.Context, threadID, content string) error {
	_, err := retry.Do(ctx, func(ctx context.Context) (*Message, error) {
		return c.transport.CreateMessage(ctx, threadID, content)
	}, c.retry)
	if err != nil {
		return wrap("failed to create message", err)
	}
	return nil
}

// StartRun begins an assistant run on the thread and returns the run id.
func (c *Client) StartRun(ctx context.Context, threadID string) (string, error) {
	if c.assistantID == "" && c.requireID {
		return "", NewError(KindConfig, http.StatusInternalServerError, "assistant id is not configured")
	}
	run, err := retry.Do(ctx, func(ctx context.Context) (*Run, error) {
		return c.transport.CreateRun(ctx, threadID, c.assistantID)
	}, c.retry)
	if err != nil {
		return "", wrap("failed to run assistant", err)
	}
	return run.ID, nil
}

// FetchRunStatus retrieves the current state of a run.
func (c *Client) FetchRunStatus(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := retry.Do(ctx, func(ctx context.Context) (*Run, error) {
		return c.transport.RetrieveRun(ctx, threadID, runID)
	}, c.retry)
	if err != nil {
		return nil, wrap("failed to get run status", err)
	}
	return run, nil
}

// FetchMessages lists the thread's messages, newest first.
func (c *Client) FetchMessages(ctx context.Context, threadID string) ([]Message, error) {
	msgs, err := retry.Do(ctx, func(ctx context.Context) ([]Message, error) {
		return c.transport.ListMessages(ctx, threadID)
	}, c.retry)
	if err != nil {
		return nil, wrap("failed to get messages", err)
	}
	return msgs, nil
}

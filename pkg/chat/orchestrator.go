// Package chat runs one support-chat turn end to end against the assistant
// service: resolve the thread, post the user's message, run the assistant,
// wait for the run, and turn the newest message into displayable text.
package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/holon-run/supportchat/pkg/assistant"
	holonlog "github.com/holon-run/supportchat/pkg/log"
)

// Assistant is the subset of *assistant.Client the orchestrator drives.
type Assistant interface {
	CreateThread(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, threadID, content string) error
	StartRun(ctx context.Context, threadID string) (string, error)
	WaitForCompletion(ctx context.Context, threadID, runID string, maxAttempts int) ([]assistant.Message, error)
}

// Turn is one user message, optionally continuing an existing thread.
type Turn struct {
	Message  string
	ThreadID string
}

// Reply is the cleaned assistant answer for a turn.
type Reply struct {
	Text      string    `json:"message"`
	ThreadID  string    `json:"threadId"`
	Timestamp time.Time `json:"timestamp"`
}

// Config configures an Orchestrator.
type Config struct {
	Assistant Assistant
	// MaxPollAttempts bounds run polling; 0 uses the assistant default.
	MaxPollAttempts int
	// MaxInputTokens rejects longer messages when > 0.
	MaxInputTokens int
	// Tokens counts message tokens; required when MaxInputTokens > 0 and
	// defaults to the o200k_base tokenizer.
	Tokens TokenCounter
	// GuardThreads rejects a turn while another turn on the same thread is
	// in flight in this process.
	GuardThreads bool
	Now          func() time.Time
}

// Orchestrator composes the assistant operations into a request/response
// cycle. It keeps no conversation state; callers own the thread id.
type Orchestrator struct {
	assistant       Assistant
	maxPollAttempts int
	maxInputTokens  int
	tokens          TokenCounter
	guard           *threadGuard
	now             func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Assistant == nil {
		return nil, errors.New("assistant is required")
	}
	o := &Orchestrator{
		assistant:       cfg.Assistant,
		maxPollAttempts: cfg.MaxPollAttempts,
		maxInputTokens:  cfg.MaxInputTokens,
		tokens:          cfg.Tokens,
		now:             cfg.Now,
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.maxInputTokens > 0 && o.tokens == nil {
		counter, err := NewTokenCounter()
		if err != nil {
			return nil, err
		}
		o.tokens = counter
	}
	if cfg.GuardThreads {
		o.guard = &threadGuard{busy: make(map[string]struct{})}
	}
	return o, nil
}

// HandleTurn runs a full turn and returns the assistant's cleaned reply
// together with the thread id to continue the conversation with.
func (o *Orchestrator) HandleTurn(ctx context.Context, turn Turn) (*Reply, error) {
	start := o.now()
	if err := o.validate(turn.Message); err != nil {
		return nil, err
	}

	threadID := strings.TrimSpace(turn.ThreadID)
	if threadID == "" {
		id, err := o.assistant.CreateThread(ctx)
		if err != nil {
			return nil, err
		}
		threadID = id
		holonlog.Debug("created thread", "thread_id", threadID)
	}

	if o.guard != nil {
		if !o.guard.acquire(threadID) {
			return nil, assistant.NewError(assistant.KindConflict, http.StatusConflict,
				"a run is already in progress on thread %s", threadID)
		}
		defer o.guard.release(threadID)
	}

	if err := o.assistant.PostMessage(ctx, threadID, turn.Message); err != nil {
		return nil, err
	}
	runID, err := o.assistant.StartRun(ctx, threadID)
	if err != nil {
		return nil, err
	}
	msgs, err := o.assistant.WaitForCompletion(ctx, threadID, runID, o.maxPollAttempts)
	if err != nil {
		return nil, err
	}

	text, err := newestText(msgs)
	if err != nil {
		return nil, err
	}

	reply := &Reply{
		Text:      CleanReply(text),
		ThreadID:  threadID,
		Timestamp: o.now(),
	}
	holonlog.Progress("turn completed", "thread_id", threadID, "run_id", runID, "duration", reply.Timestamp.Sub(start))
	return reply, nil
}

func (o *Orchestrator) validate(message string) error {
	if strings.TrimSpace(message) == "" {
		return assistant.NewError(assistant.KindValidation, http.StatusBadRequest, "Message is required")
	}
	if o.maxInputTokens > 0 {
		n, err := o.tokens.Count(message)
		if err != nil {
			return err
		}
		if n > o.maxInputTokens {
			return assistant.NewError(assistant.KindValidation, http.StatusBadRequest,
				"Message is too long (%d tokens, limit %d)", n, o.maxInputTokens)
		}
	}
	return nil
}

// newestText returns the text of the newest message, which must be a text
// part; images and tool artifacts are not displayable.
func newestText(msgs []assistant.Message) (string, error) {
	if len(msgs) == 0 || len(msgs[0].Content) == 0 {
		return "", assistant.NewError(assistant.KindUnexpectedContent, http.StatusInternalServerError,
			"unexpected message content type: empty")
	}
	part := msgs[0].Content[0]
	if !part.IsText() {
		return "", assistant.NewError(assistant.KindUnexpectedContent, http.StatusInternalServerError,
			"unexpected message content type: %s", part.Type)
	}
	return part.Text, nil
}

type threadGuard struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func (g *threadGuard) acquire(threadID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.busy[threadID]; ok {
		return false
	}
	g.busy[threadID] = struct{}{}
	return true
}

func (g *threadGuard) release(threadID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.busy, threadID)
}

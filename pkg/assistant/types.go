package assistant

import (
	"context"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType identifies the kind of a message content part.
type ContentType string

const (
	ContentText      ContentType = "text"
	ContentImageFile ContentType = "image_file"
	ContentImageURL  ContentType = "image_url"
)

// ContentPart is one piece of a message. Only text parts carry Text.
type ContentPart struct {
	Type   ContentType `json:"type"`
	Text   string      `json:"text,omitempty"`
	FileID string      `json:"file_id,omitempty"`
	URL    string      `json:"url,omitempty"`
}

// IsText reports whether the part is a text part.
func (p ContentPart) IsText() bool {
	return p.Type == ContentText
}

// Message is an immutable entry on a thread.
type Message struct {
	ID        string        `json:"id"`
	ThreadID  string        `json:"thread_id"`
	Role      Role          `json:"role"`
	Content   []ContentPart `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
}

// RunStatus is the lifecycle state of a run as reported by the service.
type RunStatus string

const (
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
	// RunTimedOut is never reported by the service; the poller assigns it
	// when the attempt budget runs out.
	RunTimedOut RunStatus = "timed_out"
)

// Pending reports whether the run has not reached a terminal state yet.
func (s RunStatus) Pending() bool {
	return s == RunQueued || s == RunInProgress
}

// RunError is the failure reason attached to a failed run.
type RunError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Run is one assistant invocation against a thread.
type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    RunStatus `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// Transport performs the raw remote calls against the assistant service.
// Implementations report failures carrying a status through *Error so that
// the retry policy can classify them.
type Transport interface {
	CreateThread(ctx context.Context) (string, error)
	CreateMessage(ctx context.Context, threadID, content string) (*Message, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error)
	// ListMessages returns the thread's messages, newest first.
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}

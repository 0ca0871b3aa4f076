package assistant

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Operation names used by MockTransport to count calls and queue failures.
const (
	OpCreateThread  = "create_thread"
	OpCreateMessage = "create_message"
	OpCreateRun     = "create_run"
	OpRetrieveRun   = "retrieve_run"
	OpListMessages  = "list_messages"
)

// MockTransport is an in-memory Transport with scripted run progressions.
// It is safe for concurrent use.
type MockTransport struct {
	// Statuses is the sequence RetrieveRun reports for every run; the last
	// entry repeats. Empty means the run completes immediately.
	Statuses []RunStatus
	// FailReason is attached to runs reported as failed.
	FailReason string
	// Reply is the content the assistant appends when a run completes.
	// Nil means a single text part "How can I help you today?".
	Reply []ContentPart

	mu       sync.Mutex
	nextID   int
	failures map[string][]error
	calls    map[string]int
	threads  map[string][]Message
	runs     map[string]*mockRun
}

type mockRun struct {
	threadID string
	polls    int
	replied  bool
}

// FailNext queues errors returned by the next calls of op, in order.
func (m *MockTransport) FailNext(op string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.failures[op] = append(m.failures[op], errs...)
}

// Calls returns how many times op has been invoked, failed calls included.
func (m *MockTransport) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	return m.calls[op]
}

// ThreadMessages returns the thread's messages in creation order.
func (m *MockTransport) ThreadMessages(threadID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	return append([]Message(nil), m.threads[threadID]...)
}

func (m *MockTransport) init() {
	if m.failures == nil {
		m.failures = make(map[string][]error)
		m.calls = make(map[string]int)
		m.threads = make(map[string][]Message)
		m.runs = make(map[string]*mockRun)
	}
}

// begin records a call and pops a queued failure. Callers hold m.mu.
func (m *MockTransport) begin(op string) error {
	m.init()
	m.calls[op]++
	if q := m.failures[op]; len(q) > 0 {
		m.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (m *MockTransport) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s_%d", prefix, m.nextID)
}

func (m *MockTransport) CreateThread(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpCreateThread); err != nil {
		return "", err
	}
	id := m.id("thread")
	m.threads[id] = nil
	return id, nil
}

func (m *MockTransport) CreateMessage(ctx context.Context, threadID, content string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpCreateMessage); err != nil {
		return nil, err
	}
	msg := Message{
		ID:        m.id("msg"),
		ThreadID:  threadID,
		Role:      RoleUser,
		Content:   []ContentPart{{Type: ContentText, Text: content}},
		CreatedAt: time.Now(),
	}
	m.threads[threadID] = append(m.threads[threadID], msg)
	return &msg, nil
}

func (m *MockTransport) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpCreateRun); err != nil {
		return nil, err
	}
	id := m.id("run")
	m.runs[id] = &mockRun{threadID: threadID}
	return &Run{ID: id, ThreadID: threadID, Status: RunQueued}, nil
}

func (m *MockTransport) RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpRetrieveRun); err != nil {
		return nil, err
	}
	r, ok := m.runs[runID]
	if !ok || r.threadID != threadID {
		return nil, NewError(KindService, 404, "no run found with id %s", runID)
	}

	status := RunCompleted
	if n := len(m.Statuses); n > 0 {
		idx := r.polls
		if idx >= n {
			idx = n - 1
		}
		status = m.Statuses[idx]
	}
	r.polls++

	run := &Run{ID: runID, ThreadID: threadID, Status: status}
	switch status {
	case RunCompleted:
		if !r.replied {
			r.replied = true
			reply := m.Reply
			if reply == nil {
				reply = []ContentPart{{Type: ContentText, Text: "How can I help you today?"}}
			}
			m.threads[threadID] = append(m.threads[threadID], Message{
				ID:        m.id("msg"),
				ThreadID:  threadID,
				Role:      RoleAssistant,
				Content:   reply,
				CreatedAt: time.Now(),
			})
		}
	case RunFailed:
		if m.FailReason != "" {
			run.LastError = &RunError{Code: "server_error", Message: m.FailReason}
		}
	}
	return run, nil
}

func (m *MockTransport) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpListMessages); err != nil {
		return nil, err
	}
	msgs := m.threads[threadID]
	out := make([]Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

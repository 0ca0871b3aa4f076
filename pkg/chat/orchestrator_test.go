package chat

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/holon-run/supportchat/pkg/assistant"
	"github.com/holon-run/supportchat/pkg/retry"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestOrchestrator(t *testing.T, mock *assistant.MockTransport, mutate func(*Config)) *Orchestrator {
	t.Helper()
	client, err := assistant.NewClient(assistant.Config{
		Transport:   mock,
		AssistantID: "asst_test",
		Retry:       retry.Options{MaxAttempts: 3, Sleep: noSleep},
		Sleep:       noSleep,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	cfg := Config{
		Assistant: client,
		Now:       func() time.Time { return time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

func TestNew_RequiresAssistant(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing assistant")
	}
}

func TestHandleTurn_NewConversation(t *testing.T) {
	mock := &assistant.MockTransport{
		Statuses: []assistant.RunStatus{assistant.RunQueued, assistant.RunInProgress, assistant.RunCompleted},
		Reply: []assistant.ContentPart{{
			Type: assistant.ContentText,
			Text: "**Restart** the app 【4:0†Help Center.docx】 and try again.",
		}},
	}
	o := newTestOrchestrator(t, mock, nil)

	reply, err := o.HandleTurn(context.Background(), Turn{Message: "Hello"})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if reply.ThreadID == "" {
		t.Fatal("expected a new thread id")
	}
	if reply.Text != "Restart the app  and try again." {
		t.Errorf("Text = %q", reply.Text)
	}
	if !reply.Timestamp.Equal(time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("Timestamp = %v", reply.Timestamp)
	}
	if got := mock.Calls(assistant.OpCreateThread); got != 1 {
		t.Errorf("create_thread calls = %d, want 1", got)
	}
	if got := mock.Calls(assistant.OpRetrieveRun); got != 3 {
		t.Errorf("retrieve_run calls = %d, want 3", got)
	}

	msgs := mock.ThreadMessages(reply.ThreadID)
	if len(msgs) != 2 || msgs[0].Role != assistant.RoleUser || msgs[0].Content[0].Text != "Hello" {
		t.Errorf("thread messages = %+v, want user Hello then assistant", msgs)
	}
}

func TestHandleTurn_ReusesThread(t *testing.T) {
	mock := &assistant.MockTransport{}
	o := newTestOrchestrator(t, mock, nil)
	ctx := context.Background()

	first, err := o.HandleTurn(ctx, Turn{Message: "My app freezes"})
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	second, err := o.HandleTurn(ctx, Turn{Message: "Still frozen", ThreadID: first.ThreadID})
	if err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	third, err := o.HandleTurn(ctx, Turn{Message: "Still frozen", ThreadID: first.ThreadID})
	if err != nil {
		t.Fatalf("third turn failed: %v", err)
	}

	if second.ThreadID != first.ThreadID || third.ThreadID != first.ThreadID {
		t.Errorf("thread ids differ: %q %q %q", first.ThreadID, second.ThreadID, third.ThreadID)
	}
	if got := mock.Calls(assistant.OpCreateThread); got != 1 {
		t.Errorf("create_thread calls = %d, want 1", got)
	}

	var userMsgs []string
	for _, m := range mock.ThreadMessages(first.ThreadID) {
		if m.Role == assistant.RoleUser {
			userMsgs = append(userMsgs, m.Content[0].Text)
		}
	}
	want := []string{"My app freezes", "Still frozen", "Still frozen"}
	if strings.Join(userMsgs, "|") != strings.Join(want, "|") {
		t.Errorf("user messages = %v, want %v", userMsgs, want)
	}
}

func TestHandleTurn_Validation(t *testing.T) {
	mock := &assistant.MockTransport{}
	o := newTestOrchestrator(t, mock, nil)

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := o.HandleTurn(context.Background(), Turn{Message: msg})
		if assistant.KindOf(err) != assistant.KindValidation {
			t.Errorf("message %q: KindOf = %q, want validation", msg, assistant.KindOf(err))
		}
		if assistant.StatusOf(err) != http.StatusBadRequest {
			t.Errorf("message %q: status = %d, want 400", msg, assistant.StatusOf(err))
		}
	}
	if got := mock.Calls(assistant.OpCreateThread); got != 0 {
		t.Errorf("create_thread calls = %d, want 0", got)
	}
}

type wordCounter struct{}

func (wordCounter) Count(text string) (int, error) { return len(strings.Fields(text)), nil }

func TestHandleTurn_TokenBudget(t *testing.T) {
	mock := &assistant.MockTransport{}
	o := newTestOrchestrator(t, mock, func(cfg *Config) {
		cfg.MaxInputTokens = 3
		cfg.Tokens = wordCounter{}
	})

	_, err := o.HandleTurn(context.Background(), Turn{Message: "one two three four"})
	if assistant.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (err=%v)", assistant.StatusOf(err), err)
	}
	if !strings.Contains(err.Error(), "limit 3") {
		t.Errorf("error = %q, want limit in message", err.Error())
	}
	if _, err := o.HandleTurn(context.Background(), Turn{Message: "one two"}); err != nil {
		t.Errorf("short message rejected: %v", err)
	}
}

func TestHandleTurn_RunFailure(t *testing.T) {
	mock := &assistant.MockTransport{
		Statuses:   []assistant.RunStatus{assistant.RunInProgress, assistant.RunFailed},
		FailReason: "internal error",
	}
	o := newTestOrchestrator(t, mock, nil)

	_, err := o.HandleTurn(context.Background(), Turn{Message: "Hello"})
	if !assistant.IsRunFailure(err) {
		t.Fatalf("expected run failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "internal error") {
		t.Errorf("error %q does not include the service reason", err.Error())
	}
	if assistant.StatusOf(err) != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", assistant.StatusOf(err))
	}
}

func TestHandleTurn_NonTextReply(t *testing.T) {
	tests := []struct {
		name  string
		reply []assistant.ContentPart
	}{
		{"image file", []assistant.ContentPart{{Type: assistant.ContentImageFile, FileID: "file_1"}}},
		{"image url", []assistant.ContentPart{{Type: assistant.ContentImageURL, URL: "https://example.com/a.png"}}},
		{"empty content", []assistant.ContentPart{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &assistant.MockTransport{Reply: tt.reply}
			o := newTestOrchestrator(t, mock, nil)

			_, err := o.HandleTurn(context.Background(), Turn{Message: "Show me"})
			if assistant.KindOf(err) != assistant.KindUnexpectedContent {
				t.Fatalf("KindOf = %q, want unexpected_content (err=%v)", assistant.KindOf(err), err)
			}
			if assistant.StatusOf(err) != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", assistant.StatusOf(err))
			}
		})
	}
}

func TestHandleTurn_RateLimited(t *testing.T) {
	mock := &assistant.MockTransport{}
	rateLimited := &assistant.Error{Kind: assistant.KindService, Status: http.StatusTooManyRequests, Message: "rate limited"}
	mock.FailNext(assistant.OpCreateThread, rateLimited, rateLimited, rateLimited)
	o := newTestOrchestrator(t, mock, nil)

	_, err := o.HandleTurn(context.Background(), Turn{Message: "Hello"})
	if assistant.StatusOf(err) != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (err=%v)", assistant.StatusOf(err), err)
	}
	if got := mock.Calls(assistant.OpCreateThread); got != 3 {
		t.Errorf("create_thread calls = %d, want 3", got)
	}
}

func TestHandleTurn_Timeout(t *testing.T) {
	mock := &assistant.MockTransport{Statuses: []assistant.RunStatus{assistant.RunQueued}}
	o := newTestOrchestrator(t, mock, func(cfg *Config) { cfg.MaxPollAttempts = 4 })

	_, err := o.HandleTurn(context.Background(), Turn{Message: "Hello"})
	if !assistant.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if assistant.StatusOf(err) != http.StatusRequestTimeout {
		t.Errorf("status = %d, want 408", assistant.StatusOf(err))
	}
	if got := mock.Calls(assistant.OpRetrieveRun); got != 4 {
		t.Errorf("retrieve_run calls = %d, want 4", got)
	}
}

// blockingAssistant holds WaitForCompletion until release is closed.
type blockingAssistant struct {
	Assistant
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAssistant) WaitForCompletion(ctx context.Context, threadID, runID string, maxAttempts int) ([]assistant.Message, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.Assistant.WaitForCompletion(ctx, threadID, runID, maxAttempts)
}

func TestHandleTurn_GuardRejectsConcurrentTurnOnSameThread(t *testing.T) {
	mock := &assistant.MockTransport{}
	client, err := assistant.NewClient(assistant.Config{Transport: mock, AssistantID: "asst_test", Sleep: noSleep})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	blocking := &blockingAssistant{
		Assistant: client,
		entered:   make(chan struct{}, 1),
		release:   make(chan struct{}),
	}
	o, err := New(Config{Assistant: blocking, GuardThreads: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := o.HandleTurn(context.Background(), Turn{Message: "first", ThreadID: "thread_shared"})
		done <- err
	}()
	<-blocking.entered

	_, err = o.HandleTurn(context.Background(), Turn{Message: "second", ThreadID: "thread_shared"})
	if assistant.KindOf(err) != assistant.KindConflict {
		t.Fatalf("KindOf = %q, want conflict", assistant.KindOf(err))
	}
	if assistant.StatusOf(err) != http.StatusConflict {
		t.Errorf("status = %d, want 409", assistant.StatusOf(err))
	}

	close(blocking.release)
	if err := <-done; err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	// The thread is free again once the first turn is done.
	if _, err := o.HandleTurn(context.Background(), Turn{Message: "third", ThreadID: "thread_shared"}); err != nil {
		t.Fatalf("turn after release failed: %v", err)
	}
}

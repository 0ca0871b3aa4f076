package assistant

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func startTestRun(t *testing.T, c *Client) (string, string) {
	t.Helper()
	ctx := context.Background()
	threadID, err := c.CreateThread(ctx)
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	if err := c.PostMessage(ctx, threadID, "Hello"); err != nil {
		t.Fatalf("PostMessage failed: %v", err)
	}
	runID, err := c.StartRun(ctx, threadID)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	return threadID, runID
}

func TestWaitForCompletion_QueuedInProgressCompleted(t *testing.T) {
	mock := &MockTransport{
		Statuses: []RunStatus{RunQueued, RunInProgress, RunCompleted},
		Reply:    []ContentPart{{Type: ContentText, Text: "Try restarting the app."}},
	}
	var slept []time.Duration
	c, err := NewClient(Config{
		Transport:    mock,
		AssistantID:  "asst_1",
		PollInterval: 250 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	threadID, runID := startTestRun(t, c)

	msgs, err := c.WaitForCompletion(context.Background(), threadID, runID, 0)
	if err != nil {
		t.Fatalf("WaitForCompletion failed: %v", err)
	}
	if got := mock.Calls(OpRetrieveRun); got != 3 {
		t.Errorf("status fetches = %d, want 3", got)
	}
	if got := mock.Calls(OpListMessages); got != 1 {
		t.Errorf("message fetches = %d, want 1", got)
	}
	if len(slept) != 2 || slept[0] != 250*time.Millisecond {
		t.Errorf("sleeps = %v, want two fixed 250ms intervals", slept)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleAssistant || msgs[0].Content[0].Text != "Try restarting the app." {
		t.Errorf("newest message = %+v, want the assistant reply", msgs[0])
	}
	if msgs[1].Role != RoleUser {
		t.Errorf("oldest message role = %q, want user", msgs[1].Role)
	}
}

func TestWaitForCompletion_Timeout(t *testing.T) {
	mock := &MockTransport{Statuses: []RunStatus{RunInProgress}}
	c := newTestClient(t, mock, "asst_1")
	threadID, runID := startTestRun(t, c)

	_, err := c.WaitForCompletion(context.Background(), threadID, runID, 5)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if StatusOf(err) != http.StatusRequestTimeout {
		t.Errorf("StatusOf(err) = %d, want 408", StatusOf(err))
	}
	if IsRunFailure(err) {
		t.Error("timeout must be distinct from run failure")
	}
	if got := mock.Calls(OpRetrieveRun); got != 5 {
		t.Errorf("status fetches = %d, want 5", got)
	}
	if got := mock.Calls(OpListMessages); got != 0 {
		t.Errorf("message fetches = %d, want 0", got)
	}
}

func TestWaitForCompletion_DefaultBudget(t *testing.T) {
	mock := &MockTransport{Statuses: []RunStatus{RunQueued}}
	c := newTestClient(t, mock, "asst_1")
	threadID, runID := startTestRun(t, c)

	_, err := c.WaitForCompletion(context.Background(), threadID, runID, 0)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if got := mock.Calls(OpRetrieveRun); got != 30 {
		t.Errorf("status fetches = %d, want 30", got)
	}
}

func TestWaitForCompletion_TerminalFailures(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []RunStatus
		reason     string
		wantKind   Kind
		wantSubstr string
	}{
		{
			name:       "failed with reason",
			statuses:   []RunStatus{RunQueued, RunFailed},
			reason:     "internal error",
			wantKind:   KindRunFailed,
			wantSubstr: "run failed: internal error",
		},
		{
			name:       "failed without reason",
			statuses:   []RunStatus{RunFailed},
			wantKind:   KindRunFailed,
			wantSubstr: "run failed: unknown error",
		},
		{
			name:       "cancelled",
			statuses:   []RunStatus{RunInProgress, RunCancelled},
			wantKind:   KindRunCancelled,
			wantSubstr: "run was cancelled",
		},
		{
			name:       "requires action is unexpected",
			statuses:   []RunStatus{RunStatus("requires_action")},
			wantKind:   KindUnexpectedStatus,
			wantSubstr: "unexpected run status: requires_action",
		},
		{
			name:       "expired is unexpected",
			statuses:   []RunStatus{RunQueued, RunStatus("expired")},
			wantKind:   KindUnexpectedStatus,
			wantSubstr: "unexpected run status: expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockTransport{Statuses: tt.statuses, FailReason: tt.reason}
			c := newTestClient(t, mock, "asst_1")
			threadID, runID := startTestRun(t, c)

			_, err := c.WaitForCompletion(context.Background(), threadID, runID, 10)
			if KindOf(err) != tt.wantKind {
				t.Fatalf("KindOf(err) = %q, want %q (err=%v)", KindOf(err), tt.wantKind, err)
			}
			if !strings.Contains(err.Error(), tt.wantSubstr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantSubstr)
			}
			if StatusOf(err) != http.StatusInternalServerError {
				t.Errorf("StatusOf(err) = %d, want 500", StatusOf(err))
			}
			if got := mock.Calls(OpRetrieveRun); got != len(tt.statuses) {
				t.Errorf("status fetches = %d, want %d", got, len(tt.statuses))
			}
		})
	}
}

func TestWaitForCompletion_StatusFetchErrorPropagates(t *testing.T) {
	mock := &MockTransport{Statuses: []RunStatus{RunQueued, RunCompleted}}
	c := newTestClient(t, mock, "asst_1")
	threadID, runID := startTestRun(t, c)

	mock.FailNext(OpRetrieveRun, &Error{Kind: KindService, Status: 404, Message: "run not found"})
	_, err := c.WaitForCompletion(context.Background(), threadID, runID, 10)
	if StatusOf(err) != http.StatusNotFound {
		t.Fatalf("StatusOf(err) = %d, want 404 (err=%v)", StatusOf(err), err)
	}
}

func TestWaitForCompletion_ContextCancelledWhileSleeping(t *testing.T) {
	mock := &MockTransport{Statuses: []RunStatus{RunInProgress}}
	ctx, cancel := context.WithCancel(context.Background())
	c, err := NewClient(Config{
		Transport:   mock,
		AssistantID: "asst_1",
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	threadID, runID := startTestRun(t, c)

	_, err = c.WaitForCompletion(ctx, threadID, runID, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := mock.Calls(OpRetrieveRun); got != 1 {
		t.Errorf("status fetches = %d, want 1", got)
	}
}

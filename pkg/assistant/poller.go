package assistant

import (
	"context"
	"net/http"

	holonlog "github.com/holon-run/supportchat/pkg/log"
)

// WaitForCompletion polls the run until it reaches a terminal state and
// returns the thread's messages (newest first) once it has completed.
//
// Each iteration makes exactly one status fetch. maxAttempts bounds the
// number of fetches; a value <= 0 uses the client's default. A run still
// pending after maxAttempts fetches yields a KindTimeout error.
func (c *Client) WaitForCompletion(ctx context.Context, threadID, runID string, maxAttempts int) ([]Message, error) {
	if maxAttempts <= 0 {
		maxAttempts = c.maxPollAttempts
	}
	logger := holonlog.With("thread_id", threadID, "run_id", runID)

	run, err := c.FetchRunStatus(ctx, threadID, runID)
	if err != nil {
		return nil, err
	}
	attempts := 1

	for run.Status.Pending() {
		if attempts >= maxAttempts {
			logger.Warnw("run timed out", "attempts", attempts, "last_status", run.Status)
			return nil, &Error{
				Kind:    KindTimeout,
				Status:  http.StatusRequestTimeout,
				Code:    string(RunTimedOut),
				Message: "run timed out",
			}
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return nil, wrap("failed to wait for run completion", err)
		}
		run, err = c.FetchRunStatus(ctx, threadID, runID)
		if err != nil {
			return nil, err
		}
		attempts++
		logger.Debugw("polled run", "attempt", attempts, "status", run.Status)
	}

	switch run.Status {
	case RunCompleted:
		logger.Debugw("run completed", "attempts", attempts)
		return c.FetchMessages(ctx, threadID)
	case RunFailed:
		reason := "unknown error"
		code := ""
		if run.LastError != nil {
			if run.LastError.Message != "" {
				reason = run.LastError.Message
			}
			code = run.LastError.Code
		}
		return nil, &Error{
			Kind:    KindRunFailed,
			Status:  http.StatusInternalServerError,
			Code:    code,
			Message: "run failed: " + reason,
		}
	case RunCancelled:
		return nil, NewError(KindRunCancelled, http.StatusInternalServerError, "run was cancelled")
	default:
		return nil, NewError(KindUnexpectedStatus, http.StatusInternalServerError, "unexpected run status: %s", run.Status)
	}
}

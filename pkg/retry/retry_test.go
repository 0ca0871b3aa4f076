package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

type statusError struct {
	status int
}

func (e *statusError) Error() string   { return fmt.Sprintf("status %d", e.status) }
func (e *statusError) HTTPStatus() int { return e.status }

// recordingSleep records requested waits without blocking.
type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func testOptions(max int, rec *recordingSleep) Options {
	return Options{
		MaxAttempts:       max,
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2,
		Sleep:             rec.sleep,
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %v, want 3", opts.MaxAttempts)
	}
	if opts.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want 1s", opts.InitialDelay)
	}
	if opts.BackoffMultiplier != 2 {
		t.Errorf("BackoffMultiplier = %v, want 2", opts.BackoffMultiplier)
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	rec := &recordingSleep{}
	calls := 0
	got, err := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		return "thread_1", nil
	}, testOptions(3, rec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "thread_1" || calls != 1 {
		t.Errorf("got %q after %d calls, want thread_1 after 1", got, calls)
	}
	if len(rec.waits) != 0 {
		t.Errorf("expected no waits, got %v", rec.waits)
	}
}

func TestDo_PermanentServerErrorUsesWholeBudget(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8} {
		t.Run(fmt.Sprintf("max=%d", n), func(t *testing.T) {
			rec := &recordingSleep{}
			calls := 0
			wantErr := &statusError{status: http.StatusBadGateway}
			_, err := Do(context.Background(), func(context.Context) (int, error) {
				calls++
				return 0, wantErr
			}, testOptions(n, rec))
			if !errors.Is(err, wantErr) {
				t.Fatalf("err = %v, want %v", err, wantErr)
			}
			if calls != n {
				t.Errorf("calls = %d, want %d", calls, n)
			}
			if len(rec.waits) != n-1 {
				t.Errorf("waits = %d, want %d", len(rec.waits), n-1)
			}
		})
	}
}

func TestDo_ErrorWithoutStatusIsRetried(t *testing.T) {
	rec := &recordingSleep{}
	calls := 0
	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset by peer")
		}
		return 42, nil
	}, testOptions(3, rec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ClientErrorsNotRetried(t *testing.T) {
	statuses := []int{400, 401, 403, 404, 409, 422, 429, 499}
	for _, status := range statuses {
		t.Run(fmt.Sprintf("status=%d", status), func(t *testing.T) {
			rec := &recordingSleep{}
			calls := 0
			_, err := Do(context.Background(), func(context.Context) (int, error) {
				calls++
				return 0, fmt.Errorf("wrapped: %w", &statusError{status: status})
			}, testOptions(5, rec))
			if StatusOf(err) != status {
				t.Errorf("StatusOf(err) = %d, want %d", StatusOf(err), status)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
			if len(rec.waits) != 0 {
				t.Errorf("waits = %v, want none", rec.waits)
			}
		})
	}
}

func TestDo_RetryableStatusOverride(t *testing.T) {
	rec := &recordingSleep{}
	opts := testOptions(4, rec)
	opts.RetryableStatus = []int{http.StatusTooManyRequests}

	calls := 0
	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, &statusError{status: http.StatusTooManyRequests}
	}, opts)
	if StatusOf(err) != http.StatusTooManyRequests {
		t.Fatalf("StatusOf(err) = %d, want 429", StatusOf(err))
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}

	// Other 4xx stay non-retryable.
	calls = 0
	_, _ = Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, &statusError{status: http.StatusUnauthorized}
	}, opts)
	if calls != 1 {
		t.Errorf("401 calls = %d, want 1", calls)
	}
}

func TestDo_WaitsGrowExponentially(t *testing.T) {
	rec := &recordingSleep{}
	opts := Options{
		MaxAttempts:       5,
		InitialDelay:      250 * time.Millisecond,
		BackoffMultiplier: 3,
		Sleep:             rec.sleep,
	}
	_, _ = Do(context.Background(), func(context.Context) (int, error) {
		return 0, &statusError{status: 503}
	}, opts)

	want := []time.Duration{
		250 * time.Millisecond,
		750 * time.Millisecond,
		2250 * time.Millisecond,
		6750 * time.Millisecond,
	}
	if len(rec.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", rec.waits, want)
	}
	for i := range want {
		if rec.waits[i] != want[i] {
			t.Errorf("wait before attempt %d = %v, want %v", i+2, rec.waits[i], want[i])
		}
		if i > 0 && rec.waits[i] <= rec.waits[i-1] {
			t.Errorf("wait %d (%v) not greater than wait %d (%v)", i, rec.waits[i], i-1, rec.waits[i-1])
		}
	}
}

func TestOptions_Delay(t *testing.T) {
	opts := Options{InitialDelay: time.Second, BackoffMultiplier: 2, MaxDelay: 5 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{0, time.Second},
	}
	for _, tt := range tests {
		if got := opts.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestOptions_DelayAlwaysGrows(t *testing.T) {
	for _, m := range []float64{-1, 0, 0.5, 1} {
		opts := Options{InitialDelay: time.Second, BackoffMultiplier: m}
		prev := opts.Delay(1)
		for attempt := 2; attempt <= 4; attempt++ {
			d := opts.Delay(attempt)
			if d <= prev {
				t.Errorf("multiplier %g: Delay(%d) = %v, not above %v", m, attempt, d, prev)
			}
			prev = d
		}
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := Options{
		MaxAttempts:  3,
		InitialDelay: time.Hour,
	}
	calls := 0
	_, err := Do(ctx, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, &statusError{status: 500}
	}, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if StatusOf(err) != 500 {
		t.Errorf("StatusOf(err) = %d, want the last failure's status", StatusOf(err))
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRun(t *testing.T) {
	rec := &recordingSleep{}
	calls := 0
	err := Run(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &statusError{status: 500}
		}
		return nil
	}, testOptions(3, rec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, false},
		{399, false},
		{400, true},
		{429, true},
		{499, true},
		{500, false},
	}
	for _, tt := range tests {
		if got := IsClientError(tt.status); got != tt.want {
			t.Errorf("IsClientError(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

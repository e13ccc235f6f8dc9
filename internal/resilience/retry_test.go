package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fpang/video-narrator/internal/faults"
)

// fastRetry returns a config with negligible delays so tests stay quick.
func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Name:        "test-op",
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return faults.Transient(errors.New("throttled"), "model call")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	wantErr := faults.New(faults.CodeValidation, "bad input")
	err := Retry(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return wantErr
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if faults.CodeOf(err) != faults.CodeValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(4), func(context.Context) error {
		calls++
		return faults.Transient(errors.New("503"), "downstream")
	})
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	if !faults.Retryable(err) {
		t.Errorf("exhausted retry should surface the last dependency error, got %v", err)
	}
}

func TestRetry_CustomPredicate(t *testing.T) {
	calls := 0
	cfg := fastRetry(3)
	cfg.RetryIf = func(err error) bool { return err.Error() == "again" }

	err := Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("again")
		}
		return errors.New("stop")
	})
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if err == nil || err.Error() != "stop" {
		t.Errorf("expected terminal error 'stop', got %v", err)
	}
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetry(3), func(context.Context) error {
		t.Fatal("op should not run with a cancelled context")
		return nil
	})
	if faults.CodeOf(err) != faults.CodeCancelled {
		t.Errorf("expected cancellation fault, got %v", err)
	}
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(3)
	cfg.BaseDelay = 5 * time.Second
	cfg.MaxDelay = 5 * time.Second

	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func(context.Context) error {
			return faults.Transient(errors.New("flaky"), "op")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if faults.CodeOf(err) != faults.CodeCancelled {
			t.Errorf("expected cancellation fault, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not unblock promptly after cancellation")
	}
}

func TestBackoffDelay_Bounded(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second
	for attempt := 1; attempt <= 10; attempt++ {
		for i := 0; i < 50; i++ {
			d := backoffDelay(base, max, attempt)
			if d <= 0 || d > max {
				t.Fatalf("attempt %d: delay %v outside (0, %v]", attempt, d, max)
			}
		}
	}
}

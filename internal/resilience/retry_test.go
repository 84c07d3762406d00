package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		InitDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("still broken")
	err := Retry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want last failure", err)
	}
	// Initial attempt plus MaxRetries.
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return NewPermanentError(errors.New("bad request"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry of permanent error)", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, fastRetryConfig(), func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryCallbackObservesAttempts(t *testing.T) {
	var attempts []int
	calls := 0
	err := RetryWithCallback(context.Background(), fastRetryConfig(),
		func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		},
		func(attempt int, err error, nextDelay time.Duration) {
			attempts = append(attempts, attempt)
			if nextDelay <= 0 {
				t.Errorf("nextDelay = %v", nextDelay)
			}
		})
	if err != nil {
		t.Fatalf("RetryWithCallback: %v", err)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}

func TestCalculateDelayBackoffAndCap(t *testing.T) {
	cfg := RetryConfig{
		InitDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}
	if got := calculateDelay(cfg, 0); got != 100*time.Millisecond {
		t.Errorf("attempt 0 delay = %v", got)
	}
	if got := calculateDelay(cfg, 2); got != 400*time.Millisecond {
		t.Errorf("attempt 2 delay = %v", got)
	}
	if got := calculateDelay(cfg, 10); got != time.Second {
		t.Errorf("attempt 10 delay = %v, want cap", got)
	}
}

func TestCalculateDelayJitterWithinBounds(t *testing.T) {
	cfg := RetryConfig{
		InitDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     0.5,
	}
	for i := 0; i < 50; i++ {
		d := calculateDelay(cfg, 0)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay %v outside [50ms, 150ms]", d)
		}
	}
}

package retry

import (
	"context"
	"testing"
	"time"
)

func TestPolicyStopsOnSuccess(t *testing.T) {
	calls := 0
	p := Policy[int]{
		MaxAttempts: 5,
		Retryable:   func(v int) bool { return v < 3 },
	}

	got, attempts := p.Do(context.Background(), func(ctx context.Context, attempt int) int {
		calls++
		return attempt
	})

	if got != 3 || attempts != 3 || calls != 3 {
		t.Errorf("got value %d after %d attempts (%d calls), want 3/3/3", got, attempts, calls)
	}
}

func TestPolicyExhaustsAttempts(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		wantCalls   int
	}{
		{name: "single attempt", maxAttempts: 1, wantCalls: 1},
		{name: "five attempts", maxAttempts: 5, wantCalls: 5},
		{name: "zero treated as one", maxAttempts: 0, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			retries := 0
			p := Policy[string]{
				MaxAttempts: tt.maxAttempts,
				Delay:       time.Millisecond,
				Retryable:   func(string) bool { return true },
				OnRetry:     func(int, string) { retries++ },
			}

			got, attempts := p.Do(context.Background(), func(ctx context.Context, attempt int) string {
				calls++
				return "sentinel"
			})

			if calls != tt.wantCalls || attempts != tt.wantCalls {
				t.Errorf("calls=%d attempts=%d, want %d", calls, attempts, tt.wantCalls)
			}
			if retries != tt.wantCalls-1 {
				t.Errorf("expected %d retries, got %d", tt.wantCalls-1, retries)
			}
			if got != "sentinel" {
				t.Errorf("expected last outcome, got %q", got)
			}
		})
	}
}

func TestPolicyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	p := Policy[int]{
		MaxAttempts: 5,
		Delay:       time.Hour,
		Retryable:   func(int) bool { return true },
	}

	got, attempts := p.Do(ctx, func(ctx context.Context, attempt int) int {
		calls++
		cancel()
		return 42
	})

	if calls != 1 || attempts != 1 {
		t.Errorf("expected a single call after cancellation, got calls=%d attempts=%d", calls, attempts)
	}
	if got != 42 {
		t.Errorf("expected last outcome 42, got %d", got)
	}
}

func TestPolicySkipsRetryHookWhenCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	retries := 0
	p := Policy[int]{
		MaxAttempts: 3,
		Delay:       time.Hour,
		Retryable:   func(int) bool { return true },
		OnRetry:     func(int, int) { retries++ },
	}

	_, attempts := p.Do(ctx, func(ctx context.Context, attempt int) int {
		calls++
		return attempt
	})

	if calls != 1 || attempts != 1 {
		t.Errorf("expected one attempt, got calls=%d attempts=%d", calls, attempts)
	}
	if retries != 0 {
		t.Errorf("no retry may be reported when the delay is interrupted, got %d", retries)
	}
}

func TestPolicyZeroDelay(t *testing.T) {
	calls := 0
	p := Policy[int]{
		MaxAttempts: 4,
		Retryable:   func(int) bool { return true },
	}

	start := time.Now()
	_, attempts := p.Do(context.Background(), func(ctx context.Context, attempt int) int {
		calls++
		return attempt
	})

	if calls != 4 || attempts != 4 {
		t.Errorf("calls=%d attempts=%d, want 4", calls, attempts)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("zero delay took %s", elapsed)
	}
}

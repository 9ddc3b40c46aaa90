package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestExecuteRetriesAttemptThatExceedsCallTimeout(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     1 * time.Millisecond,
		RetryMultiplier:     2,
		CallTimeout:         10 * time.Millisecond,
		BreakerEnabled:      false,
	})

	attempts := 0
	err := exec.Execute(context.Background(), "llm.generate", func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}, func(err error) ErrorClassification {
		// Adapters treat a raw deadline as permanent; the executor must still retry it.
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrorClassification{Retryable: false, RecordFailure: false}
		}
		return ErrorClassification{Retryable: false, RecordFailure: true}
	})
	if err != nil {
		t.Fatalf("expected success on second attempt, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteReportsCallTimeoutWhenAttemptsExhausted(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    1,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     1 * time.Millisecond,
		CallTimeout:         5 * time.Millisecond,
		BreakerEnabled:      false,
	})

	err := exec.Execute(context.Background(), "classify", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	if !IsCallTimeout(err) {
		t.Fatalf("expected call timeout error, got %v", err)
	}
}

func TestExecuteStopsWhenCallerContextCancelled(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     1 * time.Millisecond,
		CallTimeout:         time.Second,
		BreakerEnabled:      false,
	})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := exec.Execute(ctx, "embed", func(context.Context) error {
		attempts++
		cancel()
		return context.Canceled
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: false}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if IsCallTimeout(err) || attempts != 1 {
		t.Fatalf("caller cancellation must not retry, attempts=%d err=%v", attempts, err)
	}
}

func TestForExternalCallsOverridesDefaults(t *testing.T) {
	cfg := ForExternalCalls(5*time.Second, 7, false)
	if cfg.CallTimeout != 5*time.Second || cfg.RetryMaxAttempts != 7 || cfg.BreakerEnabled {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if got := ForExternalCalls(0, 0, true).RetryMaxAttempts; got != DefaultConfig().RetryMaxAttempts {
		t.Fatalf("attempts = %d, want default", got)
	}
}

func TestNormalizeClampsInvalidValues(t *testing.T) {
	cfg := Config{
		RetryInitialBackoff: time.Second,
		RetryMaxBackoff:     time.Millisecond,
		CallTimeout:         -time.Second,
		BreakerFailureRatio: 2,
	}.normalize()

	if cfg.RetryMaxBackoff != time.Second {
		t.Fatalf("max backoff = %s, want it raised to the initial backoff", cfg.RetryMaxBackoff)
	}
	if cfg.CallTimeout != 0 {
		t.Fatalf("call timeout = %s, want 0", cfg.CallTimeout)
	}
	if cfg.BreakerFailureRatio != DefaultConfig().BreakerFailureRatio {
		t.Fatalf("failure ratio = %v", cfg.BreakerFailureRatio)
	}
}

package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skumar2006/kalshiparlay/internal/service"
	"github.com/skumar2006/kalshiparlay/internal/venue"
)

func transientErr(msg string) error {
	return &venue.RetryableError{Err: errors.New(msg)}
}

func TestRetryTransientSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := service.RetryTransient(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

// Permanent errors end the loop immediately; only transient venue failures
// earn a retry.
func TestRetryTransientPermanentErrorNoRetry(t *testing.T) {
	permanent := errors.New("market result disagrees with local state")
	calls := 0
	err := service.RetryTransient(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("error = %v, want the permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (permanent errors never retry)", calls)
	}
}

func TestRetryTransientRecovers(t *testing.T) {
	calls := 0
	err := service.RetryTransient(context.Background(), 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return transientErr("venue 503")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

// An outage that outlasts every retry surfaces as a still-retryable error, so
// the caller can tell it apart from a permanent failure and leave the parlay
// pending instead of burning its attempt budget.
func TestRetryTransientExhausted(t *testing.T) {
	calls := 0
	err := service.RetryTransient(context.Background(), 4, time.Millisecond, func() error {
		calls++
		return transientErr("venue down")
	})
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if !venue.IsRetryable(err) {
		t.Errorf("exhausted error should still read as retryable, got %v", err)
	}
}

func TestRetryTransientStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := service.RetryTransient(ctx, 10, time.Minute, func() error {
		calls++
		cancel()
		return transientErr("venue down")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (cancellation must stop the backoff wait)", calls)
	}
	if !venue.IsRetryable(err) {
		t.Errorf("want the last transient error back, got %v", err)
	}
}

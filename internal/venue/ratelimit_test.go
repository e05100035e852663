package venue_test

import (
	"context"
	"testing"
	"time"

	"github.com/skumar2006/kalshiparlay/internal/venue"
)

// A full bucket serves the first token without blocking.
func TestTokenBucketImmediate(t *testing.T) {
	tb := venue.NewTokenBucket(1, 10)

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("first Wait took %s, expected immediate", elapsed)
	}
}

// With burst 1 and 100 tokens/s, consecutive waits are spaced ~10ms.
func TestTokenBucketSpacing(t *testing.T) {
	tb := venue.NewTokenBucket(1, 100)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := tb.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)
	// 3 tokens from a burst-1 bucket: first free, two refills of 10ms each.
	if elapsed < 15*time.Millisecond {
		t.Errorf("3 waits took %s, expected >= ~20ms of pacing", elapsed)
	}
	t.Logf("3 waits took %s", elapsed)
}

// Wait honors context cancellation while blocked on refill.
func TestTokenBucketContextCancel(t *testing.T) {
	tb := venue.NewTokenBucket(1, 0.001) // ~17 minutes per token

	// Drain the only token.
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := tb.Wait(ctx)
	if err == nil {
		t.Fatal("expected context error from empty bucket")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled Wait took %s, expected prompt return", elapsed)
	}
}

package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testGuard(t *testing.T, cfg LockoutConfig) (*LoginGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLoginGuard(client, cfg), mr
}

func TestEmailThresholdLocks(t *testing.T) {
	guard, _ := testGuard(t, LockoutConfig{})
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		result, err := guard.RecordFailure(ctx, "bob@example.com", "203.0.113.7")
		if err != nil {
			t.Fatalf("RecordFailure %d failed: %v", i, err)
		}
		if result.ShouldLock {
			t.Fatalf("attempt %d should not lock yet", i)
		}
		if result.AttemptsRemaining != 5-i {
			t.Fatalf("attempt %d: expected %d remaining, got %d", i, 5-i, result.AttemptsRemaining)
		}
	}

	result, err := guard.RecordFailure(ctx, "bob@example.com", "203.0.113.7")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !result.ShouldLock {
		t.Fatal("5th failure within the window must lock")
	}

	status, err := guard.Check(ctx, "bob@example.com", "203.0.113.7")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !status.Locked || status.RetryAfter <= 0 {
		t.Fatalf("expected active lock with positive retry-after, got %+v", status)
	}
}

func TestWindowElapsedResetsCounter(t *testing.T) {
	guard, mr := testGuard(t, LockoutConfig{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := guard.RecordFailure(ctx, "bob@example.com", "203.0.113.7"); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	// Advance past the 5-minute window: the next failure starts a fresh
	// count instead of triggering the lock.
	mr.FastForward(6 * time.Minute)
	guard.now = func() time.Time { return time.Now().Add(6 * time.Minute) }

	result, err := guard.RecordFailure(ctx, "bob@example.com", "203.0.113.7")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if result.ShouldLock {
		t.Fatal("failure after window elapsed must reset, not compound")
	}
	if result.AttemptsRemaining != 4 {
		t.Fatalf("expected 4 remaining after reset, got %d", result.AttemptsRemaining)
	}
}

func TestOriginCounterIndependentAndHigher(t *testing.T) {
	guard, _ := testGuard(t, LockoutConfig{})
	ctx := context.Background()

	// Distributed low-and-slow: one origin, many accounts. Email counters
	// never trip; the origin counter does at 2×5=10.
	for i := 0; i < 9; i++ {
		result, err := guard.RecordFailure(ctx, "victim"+string(rune('a'+i))+"@example.com", "203.0.113.9")
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if result.ShouldLock {
			t.Fatalf("attempt %d should not lock yet", i+1)
		}
	}

	result, err := guard.RecordFailure(ctx, "victimz@example.com", "203.0.113.9")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !result.ShouldLock {
		t.Fatal("10th failure from one origin must lock the origin")
	}

	// The lock is visible even for an email never seen before.
	status, err := guard.Check(ctx, "fresh@example.com", "203.0.113.9")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !status.Locked {
		t.Fatal("origin lock must block fresh emails from that origin")
	}

	// Other origins are unaffected.
	status, err = guard.Check(ctx, "victima@example.com", "198.51.100.1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if status.Locked {
		t.Fatal("different origin must not be locked by email counters below threshold")
	}
}

func TestClearDeletesCounters(t *testing.T) {
	guard, mr := testGuard(t, LockoutConfig{})
	ctx := context.Background()

	if _, err := guard.RecordFailure(ctx, "bob@example.com", "203.0.113.7"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := guard.Clear(ctx, "bob@example.com", "203.0.113.7"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if mr.Exists("lockout:email:bob@example.com") {
		t.Fatal("email counter must be deleted, not zeroed")
	}
	if mr.Exists("lockout:origin:203.0.113.7") {
		t.Fatal("origin counter must be deleted, not zeroed")
	}
}

func TestEmailKeyNormalized(t *testing.T) {
	guard, mr := testGuard(t, LockoutConfig{})
	ctx := context.Background()

	if _, err := guard.RecordFailure(ctx, "  Bob@Example.COM ", "203.0.113.7"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !mr.Exists("lockout:email:bob@example.com") {
		t.Fatal("email key must be lowercase-normalized")
	}
}

func TestAttemptLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewAttemptLimiter(client, "2fa_attempts", 3, time.Minute)
	ctx := context.Background()

	if err := limiter.Check(ctx, "acct-1"); err != nil {
		t.Fatalf("fresh Check failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := limiter.RecordFailure(ctx, "acct-1"); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}
	if err := limiter.RecordFailure(ctx, "acct-1"); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected ErrAttemptsExceeded on cap, got %v", err)
	}
	if err := limiter.Check(ctx, "acct-1"); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected ErrAttemptsExceeded from Check, got %v", err)
	}

	if err := limiter.Reset(ctx, "acct-1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := limiter.Check(ctx, "acct-1"); err != nil {
		t.Fatalf("Check after Reset failed: %v", err)
	}
}

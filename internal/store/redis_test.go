package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
)

// --- RedisRateLimiter ---

func TestRedisRateLimiter(t *testing.T) {
	if testRedis == nil {
		t.Skip("redis: TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	rl := NewRedisRateLimiter(testRedis)
	policy := RateLimit{MaxAttempts: 3, Window: time.Minute, LockoutTTL: time.Minute}

	t.Run("allows up to MaxAttempts then locks out", func(t *testing.T) {
		key := "test_login:" + uuid.Must(uuid.NewV7()).String()
		t.Cleanup(func() { rl.Reset(ctx, key) })

		for i := 0; i < policy.MaxAttempts; i++ {
			if err := rl.Allow(ctx, key, policy); err != nil {
				t.Fatalf("attempt %d: expected nil, got %v", i+1, err)
			}
		}
		if err := rl.Allow(ctx, key, policy); !errors.Is(err, ErrRateLimitExceeded) {
			t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
		}
		// Still locked on the next call.
		if err := rl.Allow(ctx, key, policy); !errors.Is(err, ErrRateLimitExceeded) {
			t.Fatalf("expected lockout to persist, got %v", err)
		}
	})

	t.Run("reset clears the lockout", func(t *testing.T) {
		key := "test_login:" + uuid.Must(uuid.NewV7()).String()
		t.Cleanup(func() { rl.Reset(ctx, key) })

		for i := 0; i <= policy.MaxAttempts; i++ {
			rl.Allow(ctx, key, policy)
		}
		if err := rl.Reset(ctx, key); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if err := rl.Allow(ctx, key, policy); err != nil {
			t.Fatalf("expected nil after reset, got %v", err)
		}
	})

	t.Run("concurrent attempts never exceed MaxAttempts", func(t *testing.T) {
		key := "test_login:" + uuid.Must(uuid.NewV7()).String()
		t.Cleanup(func() { rl.Reset(ctx, key) })

		const callers = 20
		var allowed atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if rl.Allow(ctx, key, policy) == nil {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		if got := allowed.Load(); got != int32(policy.MaxAttempts) {
			t.Errorf("expected %d allowed, got %d", policy.MaxAttempts, got)
		}
	})

	t.Run("no lockout resumes after the window", func(t *testing.T) {
		key := "test_login:" + uuid.Must(uuid.NewV7()).String()
		t.Cleanup(func() { rl.Reset(ctx, key) })
		short := RateLimit{MaxAttempts: 1, Window: 200 * time.Millisecond}

		if err := rl.Allow(ctx, key, short); err != nil {
			t.Fatalf("first attempt: %v", err)
		}
		if err := rl.Allow(ctx, key, short); !errors.Is(err, ErrRateLimitExceeded) {
			t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
		}
		time.Sleep(300 * time.Millisecond)
		if err := rl.Allow(ctx, key, short); err != nil {
			t.Fatalf("expected nil after window, got %v", err)
		}
	})

	t.Run("zero policy never limits", func(t *testing.T) {
		key := "test_login:" + uuid.Must(uuid.NewV7()).String()
		for i := 0; i < 10; i++ {
			if err := rl.Allow(ctx, key, RateLimit{}); err != nil {
				t.Fatalf("expected nil, got %v", err)
			}
		}
	})

	t.Run("health check pings", func(t *testing.T) {
		if err := rl.CheckHealth(ctx); err != nil {
			t.Fatalf("CheckHealth: %v", err)
		}
	})
}

func TestNoopRateLimiter(t *testing.T) {
	var rl NoopRateLimiter
	if err := rl.Allow(context.Background(), "k", RateLimit{MaxAttempts: 1, Window: time.Second}); err != nil {
		t.Errorf("Allow: expected nil, got %v", err)
	}
	if err := rl.CheckHealth(context.Background()); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("CheckHealth: expected ErrCacheDisabled, got %v", err)
	}
}

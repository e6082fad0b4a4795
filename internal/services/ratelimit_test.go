package services

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(clock *fakeClock) *RateLimiter {
	l := NewRateLimiter(0)
	l.now = clock.Now
	return l
}

func TestRateLimiterBoundary(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Stop()

	cfg := RateLimitConfig{Window: 15 * time.Minute, MaxRequests: 10}

	first := l.Check("1.2.3.4", cfg)
	if !first.Allowed || first.Remaining != 9 {
		t.Fatalf("Expected first call allowed with 9 remaining, got %+v", first)
	}
	wantReset := clock.Now().Add(15 * time.Minute)
	if !first.ResetAt.Equal(wantReset) {
		t.Errorf("Expected resetAt %s, got %s", wantReset, first.ResetAt)
	}

	var last RateLimitResult
	for i := 2; i <= 10; i++ {
		clock.Advance(time.Second)
		last = l.Check("1.2.3.4", cfg)
	}
	if !last.Allowed || last.Remaining != 0 {
		t.Fatalf("Expected 10th call allowed with 0 remaining, got %+v", last)
	}

	denied := l.Check("1.2.3.4", cfg)
	if denied.Allowed || denied.Remaining != 0 {
		t.Fatalf("Expected 11th call denied, got %+v", denied)
	}
	if !denied.ResetAt.Equal(first.ResetAt) {
		t.Errorf("Expected resetAt unchanged, got %s", denied.ResetAt)
	}
	retry := denied.RetryAfter(clock.Now())
	if retry <= 0 || retry > 15*time.Minute {
		t.Errorf("Unexpected retry-after %s", retry)
	}

	// 其他 IP 不受影响
	if other := l.Check("5.6.7.8", cfg); !other.Allowed {
		t.Errorf("Expected independent key to be allowed")
	}

	clock.Advance(15 * time.Minute)
	reset := l.Check("1.2.3.4", cfg)
	if !reset.Allowed || reset.Remaining != 9 {
		t.Fatalf("Expected window reset, got %+v", reset)
	}
}

func TestRateLimiterConcurrent(t *testing.T) {
	l := NewRateLimiter(0)
	defer l.Stop()

	cfg := RateLimitConfig{Window: time.Hour, MaxRequests: 50}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("same", cfg).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("Expected exactly 50 allowed, got %d", allowed)
	}
}

func TestRateLimiterSweep(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	defer l.Stop()

	l.Check("old", RateLimitConfig{Window: time.Minute, MaxRequests: 3})
	l.Check("new", RateLimitConfig{Window: time.Hour, MaxRequests: 3})

	clock.Advance(2 * time.Minute)
	if n := l.Sweep(); n != 1 {
		t.Errorf("Expected 1 evicted entry, got %d", n)
	}
	if l.Len() != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", l.Len())
	}
}

func TestRateLimiterStopIdempotent(t *testing.T) {
	l := NewRateLimiter(time.Minute)
	l.Stop()
	l.Stop()
}

package ratelimit

import (
	"sync"
	"testing"
	"time"

	"grimm.is/fwplan/internal/clock"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestLimiter_Allow_Basic(t *testing.T) {
	l := NewLimiter(clock.NewMockClock(start), 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Allow("test-key") {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}
	if l.Allow("test-key") {
		t.Error("4th request should be denied (over limit)")
	}
}

func TestLimiter_Allow_DifferentKeys(t *testing.T) {
	l := NewLimiter(clock.NewMockClock(start), 2, time.Minute)

	for i := 0; i < 2; i++ {
		if !l.Allow("key1") {
			t.Errorf("key1 request %d should be allowed", i+1)
		}
		if !l.Allow("key2") {
			t.Errorf("key2 request %d should be allowed", i+1)
		}
	}
	if l.Allow("key1") {
		t.Error("key1 should be rate limited")
	}
	if l.Allow("key2") {
		t.Error("key2 should be rate limited")
	}
}

func TestLimiter_Refill(t *testing.T) {
	clk := clock.NewMockClock(start)
	l := NewLimiter(clk, 2, time.Minute)

	l.Allow("k")
	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("bucket should be empty")
	}

	// one token every 30s
	clk.Advance(30 * time.Second)
	if !l.Allow("k") {
		t.Error("a token should have been refilled")
	}
	if l.Allow("k") {
		t.Error("only one token should have been refilled")
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	clk := clock.NewMockClock(start)
	l := NewLimiter(clk, 5, time.Minute)

	l.Allow("old")
	clk.Advance(10 * time.Minute)
	l.Allow("new")

	if n := l.Cleanup(5 * time.Minute); n != 1 {
		t.Errorf("Cleanup() = %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter(clock.NewMockClock(start), 50, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}

package server

import (
	"testing"
	"time"
)

func TestWriteLimiterSweepsIdleViewers(t *testing.T) {
	limiter := newWriteLimiter(1)
	current := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return current }

	if !limiter.allow("alice") {
		t.Fatalf("expected first write to pass")
	}
	if limiter.allow("alice") {
		t.Fatalf("expected second write within the minute to be limited")
	}

	current = current.Add(limiterIdleTTL + time.Second)
	if !limiter.allow("bob") {
		t.Fatalf("expected bob's first write to pass")
	}
	if limiter.size() != 1 {
		t.Fatalf("expected alice's idle bucket to be swept, have %d", limiter.size())
	}
}

func TestWriteLimiterDisabled(t *testing.T) {
	if newWriteLimiter(0) != nil {
		t.Fatalf("expected zero budget to disable limiting")
	}
}

package handler

import (
	"testing"
	"time"
)

func TestRateLimiterPerKey(t *testing.T) {
	now := time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)
	limiter := newRateLimiter(1, 2)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("alice") || !limiter.Allow("alice") {
		t.Fatalf("expected burst of two to be allowed")
	}
	if limiter.Allow("alice") {
		t.Fatalf("expected third call to be limited")
	}
	if !limiter.Allow("bob") {
		t.Fatalf("expected other key to have its own bucket")
	}

	now = now.Add(time.Second)
	if !limiter.Allow("alice") {
		t.Fatalf("expected token to refill after one second")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := newRateLimiter(0, 10)
	if limiter != nil {
		t.Fatalf("expected nil limiter for non-positive rate")
	}
	for i := 0; i < 100; i++ {
		if !limiter.Allow("anyone") {
			t.Fatalf("nil limiter must allow every call")
		}
	}
}

func TestRateLimiterSweepsIdleVisitors(t *testing.T) {
	now := time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)
	limiter := newRateLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	limiter.Allow("stale")
	now = now.Add(limiterIdleTTL + time.Minute)
	limiter.Allow("fresh")
	limiter.sweep(now)

	if _, ok := limiter.visitors["stale"]; ok {
		t.Fatalf("expected idle visitor to be removed")
	}
	if _, ok := limiter.visitors["fresh"]; !ok {
		t.Fatalf("expected recent visitor to be kept")
	}
}

package auth

import (
	"testing"
	"time"
)

func TestLimiterAllowsUpToMaxPerWindow(t *testing.T) {
	l := NewLimiter(time.Minute, 3)
	now := time.Unix(1000, 0)
	l.SetClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if !l.Allow("/v1/topics", "alice") {
			t.Fatalf("request %d should pass", i)
		}
	}
	if l.Allow("/v1/topics", "alice") {
		t.Fatal("fourth request in window should be rejected")
	}
}

func TestLimiterKeysByRouteAndIdentity(t *testing.T) {
	l := NewLimiter(time.Minute, 1)
	now := time.Unix(1000, 0)
	l.SetClock(func() time.Time { return now })

	if !l.Allow("/v1/topics", "alice") {
		t.Fatal("alice first request should pass")
	}
	if !l.Allow("/v1/topics", "bob") {
		t.Fatal("bob is a separate bucket")
	}
	if !l.Allow("/v1/personas", "alice") {
		t.Fatal("another route is a separate bucket")
	}
	if l.Allow("/v1/topics", "alice") {
		t.Fatal("alice second request on same route should be rejected")
	}
}

func TestLimiterWindowRollover(t *testing.T) {
	l := NewLimiter(time.Minute, 1)
	now := time.Unix(1000, 0)
	l.SetClock(func() time.Time { return now })

	if !l.Allow("/v1/topics", "alice") {
		t.Fatal("first request should pass")
	}
	if l.Allow("/v1/topics", "alice") {
		t.Fatal("second request should be rejected")
	}

	// advance past the window: the counter resets
	now = now.Add(61 * time.Second)
	if !l.Allow("/v1/topics", "alice") {
		t.Fatal("request in fresh window should pass")
	}
}

func TestLimiterDefaults(t *testing.T) {
	l := NewLimiter(0, 0)
	if l.window != time.Minute || l.max != 120 {
		t.Fatalf("unexpected defaults: window=%v max=%d", l.window, l.max)
	}
}

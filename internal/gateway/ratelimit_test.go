package gateway

import (
	"testing"
	"time"
)

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	if ok, _ := rl.Allow("a"); !ok {
		t.Fatal("first request from a rejected")
	}
	ok, wait := rl.Allow("a")
	if ok {
		t.Fatal("second request from a allowed")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("wait = %v, want within (0, 1s]", wait)
	}
	if ok, _ := rl.Allow("b"); !ok {
		t.Error("request from b rejected by a's bucket")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.Enabled() {
		t.Fatal("limiter enabled with rpm 0")
	}
	for i := 0; i < 100; i++ {
		if ok, _ := rl.Allow("a"); !ok {
			t.Fatalf("request %d rejected while disabled", i)
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	rl.Allow("idle")
	rl.cleanup(time.Now().Add(time.Minute))
	if _, ok := rl.limiters.Load("idle"); ok {
		t.Error("idle key survived cleanup")
	}
}

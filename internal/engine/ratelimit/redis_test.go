package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store := NewRedisStore(mr.Addr(), "", 0)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	return store
}

func TestRedisStore_MinuteCap(t *testing.T) {
	store := setupRedisStore(t)
	limits := Limits{PerMinute: 3, PerHour: 100}
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		res := checkAt(t, store, "1.2.3.4", base.Add(time.Duration(i)*time.Second), limits)
		if !res.Allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}

	res := checkAt(t, store, "1.2.3.4", base.Add(3*time.Second), limits)
	if res.Allowed {
		t.Fatal("Fourth request within the window should be denied")
	}
	if res.LimitType != LimitTypeMinute {
		t.Errorf("Expected minute limit type, got %s", res.LimitType)
	}
	if want := base.Add(MinuteWindow); !res.ResetAt.Equal(want) {
		t.Errorf("Expected reset at %v, got %v", want, res.ResetAt)
	}

	res = checkAt(t, store, "1.2.3.4", base.Add(MinuteWindow+time.Second), limits)
	if !res.Allowed {
		t.Error("Request after the window elapsed should be allowed")
	}
}

func TestRedisStore_DeniedRequestsDoNotConsume(t *testing.T) {
	store := setupRedisStore(t)
	limits := Limits{PerMinute: 1, PerHour: 100}
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	checkAt(t, store, "ip", base, limits)

	for i := 1; i <= 10; i++ {
		res := checkAt(t, store, "ip", base.Add(time.Duration(i)*time.Second), limits)
		if res.Allowed {
			t.Fatalf("Request at +%ds should still be denied", i)
		}
	}

	res := checkAt(t, store, "ip", base.Add(MinuteWindow+time.Second), limits)
	if !res.Allowed {
		t.Error("Denied retries consumed window slots")
	}
}

func TestRedisStore_ClientsAreIndependent(t *testing.T) {
	store := setupRedisStore(t)
	limits := Limits{PerMinute: 1, PerHour: 100}
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	checkAt(t, store, "a", base, limits)
	res := checkAt(t, store, "b", base, limits)
	if !res.Allowed {
		t.Error("Client b should not be affected by client a's usage")
	}
}

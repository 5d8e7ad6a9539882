package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// MemoryStore keeps per-client windows in process memory behind one mutex,
// so concurrent requests from the same client cannot both slip past the
// cap. Suitable for single-node deployments and tests; use RedisStore when
// state must survive restarts.
type MemoryStore struct {
	mu      sync.Mutex
	clients map[string]*windows
}

type windows struct {
	minute []time.Time
	hour   []time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clients: make(map[string]*windows)}
}

func (s *MemoryStore) Take(ctx context.Context, clientID string, now time.Time, limits Limits) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stale clients are swept probabilistically instead of by a timer; a
	// missed sweep only costs memory, never correctness, because every
	// access prunes its own windows.
	if rand.Intn(100) == 0 {
		s.sweep(now)
	}

	w, ok := s.clients[clientID]
	if !ok {
		w = &windows{}
		s.clients[clientID] = w
	}

	w.minute = prune(w.minute, now, MinuteWindow)
	w.hour = prune(w.hour, now, HourWindow)

	if len(w.minute) >= limits.PerMinute {
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   w.minute[0].Add(MinuteWindow),
			Limit:     limits.PerMinute,
			LimitType: LimitTypeMinute,
		}, nil
	}
	if len(w.hour) >= limits.PerHour {
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   w.hour[0].Add(HourWindow),
			Limit:     limits.PerHour,
			LimitType: LimitTypeHour,
		}, nil
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)

	return Result{
		Allowed:   true,
		Remaining: remaining(limits, len(w.minute), len(w.hour)),
		ResetAt:   now.Add(MinuteWindow),
		Limit:     limits.PerMinute,
		LimitType: LimitTypeMinute,
	}, nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for id, w := range s.clients {
		// prune compacts in place, so the returned headers must be stored
		// back; calling it for the count alone leaves w.hour aliasing a
		// half-compacted array.
		w.minute = prune(w.minute, now, MinuteWindow)
		w.hour = prune(w.hour, now, HourWindow)
		if len(w.hour) == 0 {
			delete(s.clients, id)
		}
	}
}

func prune(timestamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

func remaining(limits Limits, minuteCount, hourCount int) int {
	remainingMinute := limits.PerMinute - minuteCount
	remainingHour := limits.PerHour - hourCount
	if remainingHour < remainingMinute {
		remainingMinute = remainingHour
	}
	if remainingMinute < 0 {
		return 0
	}
	return remainingMinute
}

// Package ratelimit admits or rejects requests using two sliding windows
// per client: a short one minute window and a long one hour window. Only
// admitted requests consume a slot, so a rejected client can retry without
// digging itself deeper.
package ratelimit

import (
	"context"
	"time"
)

const (
	MinuteWindow = time.Minute
	HourWindow   = time.Hour

	LimitTypeMinute = "minute"
	LimitTypeHour   = "hour"
)

type Limits struct {
	PerMinute int
	PerHour   int
}

type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Limit     int
	LimitType string
}

// WindowStore prunes both windows for a client, checks the caps, and
// records the request when admitted, all as one atomic step per call.
type WindowStore interface {
	Take(ctx context.Context, clientID string, now time.Time, limits Limits) (Result, error)
}

type Limiter struct {
	store  WindowStore
	limits Limits
	now    func() time.Time
}

func NewLimiter(store WindowStore, limits Limits) *Limiter {
	return &Limiter{store: store, limits: limits, now: time.Now}
}

// Check admits or rejects one request. When the store is unreachable the
// returned error is paired with a permissive full-window Result, so callers
// that fail open still have limit values for their response headers.
func (l *Limiter) Check(ctx context.Context, clientID string) (Result, error) {
	now := l.now()
	res, err := l.store.Take(ctx, clientID, now, l.limits)
	if err != nil {
		return Result{
			Allowed:   true,
			Remaining: l.limits.PerMinute,
			ResetAt:   now.Add(MinuteWindow),
			Limit:     l.limits.PerMinute,
			LimitType: LimitTypeMinute,
		}, err
	}
	return res, nil
}

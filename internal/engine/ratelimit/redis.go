package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript prunes both windows, checks the caps, and records the request
// in one EVAL, closing the read-modify-write race a load-then-store scheme
// would have between concurrent requests from the same client.
//
// Returns {status, minuteCount, hourCount, oldestMillis} where status is
// 0 = denied on the minute window, 1 = denied on the hour window,
// 2 = allowed (counts include the recorded request).
var takeScript = redis.NewScript(`
local minuteKey = KEYS[1]
local hourKey = KEYS[2]
local now = tonumber(ARGV[1])
local minuteWindow = tonumber(ARGV[2])
local hourWindow = tonumber(ARGV[3])
local minuteCap = tonumber(ARGV[4])
local hourCap = tonumber(ARGV[5])
local member = ARGV[6]

redis.call('ZREMRANGEBYSCORE', minuteKey, '-inf', now - minuteWindow)
redis.call('ZREMRANGEBYSCORE', hourKey, '-inf', now - hourWindow)

local minuteCount = redis.call('ZCARD', minuteKey)
local hourCount = redis.call('ZCARD', hourKey)

if minuteCount >= minuteCap then
	local oldest = redis.call('ZRANGE', minuteKey, 0, 0, 'WITHSCORES')
	return {0, minuteCount, hourCount, tonumber(oldest[2])}
end
if hourCount >= hourCap then
	local oldest = redis.call('ZRANGE', hourKey, 0, 0, 'WITHSCORES')
	return {1, minuteCount, hourCount, tonumber(oldest[2])}
end

redis.call('ZADD', minuteKey, now, member)
redis.call('ZADD', hourKey, now, member)
redis.call('PEXPIRE', minuteKey, minuteWindow)
redis.call('PEXPIRE', hourKey, hourWindow)

return {2, minuteCount + 1, hourCount + 1, 0}
`)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Take(ctx context.Context, clientID string, now time.Time, limits Limits) (Result, error) {
	minuteKey := "ratelimit:" + clientID + ":minute"
	hourKey := "ratelimit:" + clientID + ":hour"
	nowMillis := now.UnixMilli()

	// Sorted-set members must be unique per request; the score alone only
	// has millisecond resolution.
	suffix := make([]byte, 4)
	rand.Read(suffix)
	member := fmt.Sprintf("%d-%s", now.UnixNano(), hex.EncodeToString(suffix))

	raw, err := takeScript.Run(ctx, s.client,
		[]string{minuteKey, hourKey},
		nowMillis,
		MinuteWindow.Milliseconds(),
		HourWindow.Milliseconds(),
		limits.PerMinute,
		limits.PerHour,
		member,
	).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(raw) != 4 {
		return Result{}, fmt.Errorf("ratelimit: unexpected script reply of length %d", len(raw))
	}

	status := raw[0].(int64)
	minuteCount := int(raw[1].(int64))
	hourCount := int(raw[2].(int64))
	oldestMillis := raw[3].(int64)

	switch status {
	case 0:
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   time.UnixMilli(oldestMillis).Add(MinuteWindow),
			Limit:     limits.PerMinute,
			LimitType: LimitTypeMinute,
		}, nil
	case 1:
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   time.UnixMilli(oldestMillis).Add(HourWindow),
			Limit:     limits.PerHour,
			LimitType: LimitTypeHour,
		}, nil
	default:
		return Result{
			Allowed:   true,
			Remaining: remaining(limits, minuteCount, hourCount),
			ResetAt:   now.Add(MinuteWindow),
			Limit:     limits.PerMinute,
			LimitType: LimitTypeMinute,
		}, nil
	}
}

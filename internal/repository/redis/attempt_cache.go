package redis

import (
	"context"
	"fmt"
	"time"

	"pics-backend/internal/attempt"
	"pics-backend/internal/client"
	"pics-backend/internal/util"
)

// AttemptCache implements attempt.Tracker on Redis with two keys per
// challenge key: a failure counter and a lock marker whose TTL is the
// lockout window.
type AttemptCache struct {
	redisClient   *client.RedisClient
	lockPrefix    string
	counterPrefix string
	threshold     int
	window        time.Duration
}

func NewAttemptCache(redisClient *client.RedisClient, threshold int, window time.Duration) *AttemptCache {
	return &AttemptCache{
		redisClient:   redisClient,
		lockPrefix:    "otp_lock:",
		counterPrefix: "otp_attempts:",
		threshold:     threshold,
		window:        window,
	}
}

// consumeAttemptScript runs the whole check-increment-lock sequence
// atomically: a locked key rejects immediately, the attempt that reaches
// the threshold swaps the counter for a lock marker, everything else
// increments and reports the remaining budget.
const consumeAttemptScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
	return {0, 0}
end
local count = redis.call("INCR", KEYS[2])
if count == 1 then
	redis.call("EXPIRE", KEYS[2], ARGV[3])
end
if count >= tonumber(ARGV[1]) then
	redis.call("DEL", KEYS[2])
	redis.call("SET", KEYS[1], "1", "EX", ARGV[2])
	return {0, 0}
end
return {1, tonumber(ARGV[1]) - count}
`

func (c *AttemptCache) Consume(ctx context.Context, key string) (attempt.Result, error) {
	windowSec := int64(c.window / time.Second)

	raw, err := c.redisClient.Eval(ctx, consumeAttemptScript,
		[]string{c.lockPrefix + key, c.counterPrefix + key},
		c.threshold, windowSec, windowSec)
	if err != nil {
		return attempt.Result{}, fmt.Errorf("failed to record attempt: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return attempt.Result{}, fmt.Errorf("unexpected attempt script reply: %v", raw)
	}
	allowed, _ := reply[0].(int64)
	remaining, _ := reply[1].(int64)

	if allowed == 0 && remaining == 0 {
		util.Debug("verification attempt rejected", util.String("key", key))
	}

	return attempt.Result{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
	}, nil
}

func (c *AttemptCache) Clear(ctx context.Context, key string) error {
	return c.redisClient.Del(ctx, c.lockPrefix+key, c.counterPrefix+key)
}

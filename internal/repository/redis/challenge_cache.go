// Package redis holds the Redis-backed challenge store and attempt
// tracker used when the service runs with more than one instance, so
// every replica sees the same OTP and lockout state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pics-backend/internal/challenge"
	"pics-backend/internal/client"
	"pics-backend/internal/clock"
	"pics-backend/internal/models"
	"pics-backend/internal/util"
)

// expiryGrace keeps an expired challenge around past its logical TTL so
// a late verification can be answered with "code expired" instead of the
// less helpful "no code pending". After the grace elapses Redis evicts
// the entry and the two cases collapse into not-found.
const expiryGrace = 10 * time.Minute

// ChallengeCache implements challenge.Store on Redis. The challenge is
// stored as JSON under a namespaced key; expiry is judged against the
// embedded expires_at, not the Redis TTL.
type ChallengeCache struct {
	redisClient *client.RedisClient
	clock       clock.Clock
	keyPrefix   string
}

func NewChallengeCache(redisClient *client.RedisClient, clk clock.Clock) *ChallengeCache {
	return &ChallengeCache{
		redisClient: redisClient,
		clock:       clk,
		keyPrefix:   "challenge:",
	}
}

func (c *ChallengeCache) storageKey(key string) string {
	return c.keyPrefix + key
}

func (c *ChallengeCache) Issue(ctx context.Context, key string, payload models.ChallengePayload, ttl time.Duration) (string, error) {
	secret, err := challenge.GenerateSecret()
	if err != nil {
		return "", err
	}

	now := c.clock.Now()
	ch := models.Challenge{
		Key:       key,
		Secret:    secret,
		Payload:   payload,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := json.Marshal(ch)
	if err != nil {
		return "", fmt.Errorf("failed to marshal challenge: %w", err)
	}

	// SET overwrites any pending challenge for the key, which is the
	// wanted resend behavior.
	if err := c.redisClient.Set(ctx, c.storageKey(key), data, ttl+expiryGrace); err != nil {
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}

	util.Debug("challenge issued",
		util.String("key", key),
		util.Duration("ttl", ttl))
	return secret, nil
}

func (c *ChallengeCache) Peek(ctx context.Context, key string) (*models.Challenge, error) {
	ch, _, err := c.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if ch.Expired(c.clock.Now()) {
		if err := c.redisClient.Del(ctx, c.storageKey(key)); err != nil {
			util.Warn("failed to drop expired challenge", util.String("key", key), util.ErrorField(err))
		}
		return nil, challenge.ErrExpired
	}
	return ch, nil
}

// consumeScript deletes the challenge only if it is still the exact entry
// the caller verified, so a concurrent re-issue or a racing consumer
// cannot be clobbered. Returns 1 when this caller won the delete.
const consumeScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

func (c *ChallengeCache) Consume(ctx context.Context, key, secret string) (*models.Challenge, error) {
	ch, raw, err := c.load(ctx, key)
	if err != nil {
		return nil, err
	}

	if ch.Expired(c.clock.Now()) {
		if err := c.redisClient.Del(ctx, c.storageKey(key)); err != nil {
			util.Warn("failed to drop expired challenge", util.String("key", key), util.ErrorField(err))
		}
		return nil, challenge.ErrExpired
	}

	// Secret comparison happens here, in constant time, never in Lua.
	if !challenge.SecretEqual(ch.Secret, secret) {
		return nil, challenge.ErrMismatch
	}

	won, err := c.redisClient.Eval(ctx, consumeScript, []string{c.storageKey(key)}, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
	if deleted, ok := won.(int64); !ok || deleted == 0 {
		// Someone else consumed or replaced the entry between our read
		// and the delete. Treat it as gone.
		return nil, challenge.ErrNotFound
	}

	return ch, nil
}

func (c *ChallengeCache) Invalidate(ctx context.Context, key string) error {
	return c.redisClient.Del(ctx, c.storageKey(key))
}

func (c *ChallengeCache) load(ctx context.Context, key string) (*models.Challenge, string, error) {
	raw, err := c.redisClient.Get(ctx, c.storageKey(key))
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, "", challenge.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to read challenge: %w", err)
	}

	var ch models.Challenge
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal challenge: %w", err)
	}
	return &ch, raw, nil
}

package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"pics-backend/internal/challenge"
	"pics-backend/internal/client"
	"pics-backend/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestClient(t *testing.T) (*client.RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return client.NewRedisClientFromRaw(rdb), mr
}

func TestChallengeCacheIssueConsume(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestClient(t)
	cache := NewChallengeCache(rc, newFakeClock())

	payload := models.ChallengePayload{Role: models.RoleJailer, JailerEmail: "j@x.com"}
	secret, err := cache.Issue(ctx, "jailer:admin@x.com", payload, 5*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ch, err := cache.Consume(ctx, "jailer:admin@x.com", secret)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if ch.Payload.JailerEmail != "j@x.com" {
		t.Errorf("payload jailer email = %q, want %q", ch.Payload.JailerEmail, "j@x.com")
	}

	if _, err := cache.Consume(ctx, "jailer:admin@x.com", secret); !errors.Is(err, challenge.ErrNotFound) {
		t.Errorf("second consume = %v, want ErrNotFound", err)
	}
}

func TestChallengeCacheMismatchKeepsEntry(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestClient(t)
	cache := NewChallengeCache(rc, newFakeClock())

	secret, err := cache.Issue(ctx, "login:a@x.com", models.ChallengePayload{}, 5*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := cache.Consume(ctx, "login:a@x.com", "000000"); !errors.Is(err, challenge.ErrMismatch) {
		t.Fatalf("consume with wrong secret = %v, want ErrMismatch", err)
	}
	if _, err := cache.Consume(ctx, "login:a@x.com", secret); err != nil {
		t.Errorf("consume after mismatch = %v, want nil", err)
	}
}

func TestChallengeCacheExpiry(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestClient(t)
	clk := newFakeClock()
	cache := NewChallengeCache(rc, clk)

	secret, err := cache.Issue(ctx, "login:a@x.com", models.ChallengePayload{}, 5*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Past the logical TTL the entry still exists in Redis within its
	// grace period, so the caller gets the specific expired answer.
	clk.Advance(5*time.Minute + time.Second)
	if _, err := cache.Consume(ctx, "login:a@x.com", secret); !errors.Is(err, challenge.ErrExpired) {
		t.Fatalf("consume after TTL = %v, want ErrExpired", err)
	}

	// The expired entry was dropped.
	if _, err := cache.Consume(ctx, "login:a@x.com", secret); !errors.Is(err, challenge.ErrNotFound) {
		t.Errorf("consume after expiry removal = %v, want ErrNotFound", err)
	}

	// Once Redis itself evicts the key, expiry collapses to not-found.
	if _, err := cache.Issue(ctx, "login:b@x.com", models.ChallengePayload{}, 5*time.Minute); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	mr.FastForward(time.Hour)
	if _, err := cache.Peek(ctx, "login:b@x.com"); !errors.Is(err, challenge.ErrNotFound) {
		t.Errorf("peek after eviction = %v, want ErrNotFound", err)
	}
}

func TestChallengeCacheIssueOverwrites(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestClient(t)
	cache := NewChallengeCache(rc, newFakeClock())

	if _, err := cache.Issue(ctx, "login:a@x.com", models.ChallengePayload{}, 5*time.Minute); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, err := cache.Issue(ctx, "login:a@x.com", models.ChallengePayload{}, 5*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ch, err := cache.Peek(ctx, "login:a@x.com")
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if ch.Secret != second {
		t.Errorf("live secret = %q, want reissued %q", ch.Secret, second)
	}
}

func TestAttemptCacheThresholdAndLockout(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestClient(t)
	cache := NewAttemptCache(rc, 5, 15*time.Minute)

	for want := 4; want >= 1; want-- {
		res, err := cache.Consume(ctx, "login:a@x.com")
		if err != nil {
			t.Fatalf("Consume: %v", err)
		}
		if !res.Allowed || res.Remaining != want {
			t.Fatalf("attempt = %+v, want {true %d}", res, want)
		}
	}

	res, err := cache.Consume(ctx, "login:a@x.com")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if res.Allowed || res.Remaining != 0 {
		t.Fatalf("threshold attempt = %+v, want {false 0}", res)
	}

	// Locked until the window elapses.
	if res, _ := cache.Consume(ctx, "login:a@x.com"); res.Allowed {
		t.Error("attempt inside lockout window allowed")
	}

	mr.FastForward(15*time.Minute + time.Second)

	res, err = cache.Consume(ctx, "login:a@x.com")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !res.Allowed || res.Remaining != 4 {
		t.Errorf("attempt after window = %+v, want {true 4}", res)
	}
}

func TestAttemptCacheClear(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestClient(t)
	cache := NewAttemptCache(rc, 5, 15*time.Minute)

	for i := 0; i < 5; i++ {
		cache.Consume(ctx, "login:a@x.com")
	}
	if res, _ := cache.Consume(ctx, "login:a@x.com"); res.Allowed {
		t.Fatal("expected lockout before clear")
	}

	if err := cache.Clear(ctx, "login:a@x.com"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	res, err := cache.Consume(ctx, "login:a@x.com")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !res.Allowed || res.Remaining != 4 {
		t.Errorf("attempt after clear = %+v, want {true 4}", res)
	}
}

package attempt

import (
	"context"
	"sync"
	"time"

	"pics-backend/internal/clock"
	"pics-backend/internal/keyshard"
	"pics-backend/internal/models"
)

const defaultShards = 16

type memoryShard struct {
	mu      sync.Mutex
	records map[string]models.AttemptRecord
}

// MemoryTracker is the single-instance Tracker: a key-sharded map of
// attempt records. Lockout state is evaluated lazily against the clock;
// records from elapsed windows are overwritten in place.
type MemoryTracker struct {
	picker    *keyshard.Picker
	shards    []*memoryShard
	clock     clock.Clock
	threshold int
	window    time.Duration
}

// NewMemoryTracker creates a tracker that locks a key for window after
// threshold consecutive failures.
func NewMemoryTracker(clk clock.Clock, threshold int, window time.Duration) *MemoryTracker {
	t := &MemoryTracker{
		picker:    keyshard.New(defaultShards),
		shards:    make([]*memoryShard, defaultShards),
		clock:     clk,
		threshold: threshold,
		window:    window,
	}
	for i := range t.shards {
		t.shards[i] = &memoryShard{records: make(map[string]models.AttemptRecord)}
	}
	return t
}

func (t *MemoryTracker) shard(key string) *memoryShard {
	return t.shards[t.picker.Pick(key)]
}

func (t *MemoryTracker) Consume(ctx context.Context, key string) (Result, error) {
	now := t.clock.Now()
	sh := t.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec := sh.records[key]

	// The lockout window is absolute: attempts inside it are rejected
	// without extending or incrementing anything.
	if now.Before(rec.LockedUntil) {
		return Result{Allowed: false, Remaining: 0}, nil
	}

	rec.Key = key
	rec.FailureCount++
	if rec.FailureCount >= t.threshold {
		rec.LockedUntil = now.Add(t.window)
		rec.FailureCount = 0
		sh.records[key] = rec
		return Result{Allowed: false, Remaining: 0}, nil
	}

	sh.records[key] = rec
	return Result{Allowed: true, Remaining: t.threshold - rec.FailureCount}, nil
}

func (t *MemoryTracker) Clear(ctx context.Context, key string) error {
	sh := t.shard(key)
	sh.mu.Lock()
	delete(sh.records, key)
	sh.mu.Unlock()
	return nil
}

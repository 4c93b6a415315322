package challenge

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
	entries map[string]models.Challenge
}

// MemoryStore is the single-instance Store implementation: a key-sharded,
// mutex-guarded map. Expired entries are dropped lazily on the next lookup
// or overwrite; there is no background sweep.
type MemoryStore struct {
	picker *keyshard.Picker
	shards []*memoryShard
	clock  clock.Clock
}

// NewMemoryStore creates an in-memory challenge store.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	s := &MemoryStore{
		picker: keyshard.New(defaultShards),
		shards: make([]*memoryShard, defaultShards),
		clock:  clk,
	}
	for i := range s.shards {
		s.shards[i] = &memoryShard{entries: make(map[string]models.Challenge)}
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	return s.shards[s.picker.Pick(key)]
}

func (s *MemoryStore) Issue(ctx context.Context, key string, payload models.ChallengePayload, ttl time.Duration) (string, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	sh := s.shard(key)
	sh.mu.Lock()
	sh.entries[key] = models.Challenge{
		Key:       key,
		Secret:    secret,
		Payload:   payload,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	sh.mu.Unlock()

	return secret, nil
}

func (s *MemoryStore) Peek(ctx context.Context, key string) (*models.Challenge, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.Expired(s.clock.Now()) {
		delete(sh.entries, key)
		return nil, ErrExpired
	}
	out := entry
	return &out, nil
}

func (s *MemoryStore) Consume(ctx context.Context, key, secret string) (*models.Challenge, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.Expired(s.clock.Now()) {
		delete(sh.entries, key)
		return nil, ErrExpired
	}
	if !SecretEqual(entry.Secret, secret) {
		return nil, ErrMismatch
	}

	delete(sh.entries, key)
	out := entry
	return &out, nil
}

func (s *MemoryStore) Invalidate(ctx context.Context, key string) error {
	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
	return nil
}

// Package keyshard maps string keys onto a fixed number of shards with
// murmur3, so per-key state can be guarded by a small set of locks instead
// of one coarse mutex.
package keyshard

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

type Picker struct {
	shards     int
	hasherPool sync.Pool
}

// New creates a picker over n shards. n must be positive.
func New(n int) *Picker {
	p := &Picker{shards: n}
	p.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return p
}

// Pick returns a stable shard index in [0, n) for key.
func (p *Picker) Pick(key string) int {
	hasher := p.hasherPool.Get().(hash.Hash64)
	defer p.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return int(hasher.Sum64() % uint64(p.shards))
}

// Shards returns the configured shard count.
func (p *Picker) Shards() int {
	return p.shards
}

package embedding

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"time"

	"github.com/dgraph-io/ristretto"
)

// keyPrefixBytes bounds how much of the text feeds the cache key. Keys
// hash a prefix plus the full length instead of the whole text, which
// keeps hashing cost flat for large chunks and accepts a theoretical
// collision between same-length texts that agree on their first 4KiB.
const keyPrefixBytes = 4096

// VectorCache memoizes embedding vectors keyed by sanitized text and
// task type, bounded by entry count and TTL. A nil *VectorCache is
// valid and misses on every lookup.
type VectorCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
	scope string
}

// NewVectorCache builds a cache holding at most maxEntries vectors,
// each expiring after ttl. The scope string namespaces keys so caches
// sized for different providers or dimensions never alias.
func NewVectorCache(scope string, maxEntries int64, ttl time.Duration) (*VectorCache, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("cache max entries must be positive, got %d", maxEntries)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}
	inner, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &VectorCache{cache: inner, ttl: ttl, scope: scope}, nil
}

func (c *VectorCache) key(task TaskType, text string) uint64 {
	h := fnv.New64a()
	io.WriteString(h, c.scope)
	h.Write([]byte{0})
	io.WriteString(h, string(task))
	h.Write([]byte{0})

	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(text)))
	h.Write(length[:])

	prefix := text
	if len(prefix) > keyPrefixBytes {
		prefix = prefix[:keyPrefixBytes]
	}
	io.WriteString(h, prefix)
	return h.Sum64()
}

// Get returns the cached vector for the given task and sanitized text.
func (c *VectorCache) Get(task TaskType, text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	value, ok := c.cache.Get(c.key(task, text))
	if !ok {
		return nil, false
	}
	vector, ok := value.([]float32)
	return vector, ok
}

// Put stores a vector under the given task and sanitized text. Entries
// share a unit cost so eviction is purely count-bounded.
func (c *VectorCache) Put(task TaskType, text string, vector []float32) {
	if c == nil || len(vector) == 0 {
		return
	}
	c.cache.SetWithTTL(c.key(task, text), vector, 1, c.ttl)
}

// Wait blocks until buffered writes are applied. Intended for tests.
func (c *VectorCache) Wait() {
	if c == nil {
		return
	}
	c.cache.Wait()
}

// Close releases the cache's internal resources.
func (c *VectorCache) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}

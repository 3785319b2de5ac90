package embedding

import (
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *VectorCache {
	t.Helper()
	cache, err := NewVectorCache("test/model/4", 128, ttl)
	if err != nil {
		t.Fatalf("NewVectorCache failed: %v", err)
	}
	t.Cleanup(cache.Close)
	return cache
}

func TestVectorCachePutGet(t *testing.T) {
	cache := newTestCache(t, time.Minute)

	vector := []float32{0.1, 0.2, 0.3, 0.4}
	cache.Put(TaskDocument, "spring gala budget", vector)
	cache.Wait()

	got, ok := cache.Get(TaskDocument, "spring gala budget")
	if !ok {
		t.Fatal("expected cache hit after Put")
	}
	if len(got) != len(vector) {
		t.Fatalf("cached vector has %d dims, want %d", len(got), len(vector))
	}
	for i := range vector {
		if got[i] != vector[i] {
			t.Fatalf("cached vector[%d] = %v, want %v", i, got[i], vector[i])
		}
	}
}

func TestVectorCacheScopesByTask(t *testing.T) {
	cache := newTestCache(t, time.Minute)

	cache.Put(TaskDocument, "major donor outreach", []float32{1, 2, 3, 4})
	cache.Wait()

	if _, ok := cache.Get(TaskQuery, "major donor outreach"); ok {
		t.Fatal("query lookup must not hit a document entry for the same text")
	}
}

func TestVectorCacheMissOnUnknownText(t *testing.T) {
	cache := newTestCache(t, time.Minute)

	if _, ok := cache.Get(TaskDocument, "never stored"); ok {
		t.Fatal("expected miss for text that was never stored")
	}
}

func TestVectorCacheTTLExpiry(t *testing.T) {
	cache := newTestCache(t, 20*time.Millisecond)

	cache.Put(TaskDocument, "expiring entry", []float32{1, 2, 3, 4})
	cache.Wait()

	time.Sleep(100 * time.Millisecond)

	if _, ok := cache.Get(TaskDocument, "expiring entry"); ok {
		t.Fatal("expected entry to expire after its ttl")
	}
}

func TestVectorCacheNilIsSafe(t *testing.T) {
	var cache *VectorCache

	cache.Put(TaskDocument, "anything", []float32{1})
	cache.Wait()
	if _, ok := cache.Get(TaskDocument, "anything"); ok {
		t.Fatal("nil cache must always miss")
	}
	cache.Close()
}

func TestNewVectorCacheRejectsBadLimits(t *testing.T) {
	if _, err := NewVectorCache("scope", 0, time.Minute); err == nil {
		t.Fatal("expected error for zero max entries")
	}
	if _, err := NewVectorCache("scope", 16, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestCache_PutAndGet(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.Put("key1", []byte("value1"))

	val, ok := c.Get("key1")
	if !ok {
		t.Fatalf("expected hit for key1")
	}
	if string(val) != "value1" {
		t.Fatalf("expected 'value1', got '%s'", string(val))
	}
}

func TestCache_GetMissing(t *testing.T) {
	c, _ := New(4)

	if _, ok := c.Get("nonexistent"); ok {
		t.Fatalf("expected miss for nonexistent key")
	}

	stats := c.Stats()
	if stats.Misses != 1 || stats.Hits != 0 {
		t.Fatalf("expected 1 miss / 0 hits, got %d / %d", stats.Misses, stats.Hits)
	}
}

func TestCache_InvalidCapacity(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatalf("expected error for capacity 0")
	}
	if _, err := New(-1); err == nil {
		t.Fatalf("expected error for negative capacity")
	}
}

func TestCache_PutReplacesValue(t *testing.T) {
	c, _ := New(4)

	c.Put("k", []byte("v1"))
	c.Put("k", []byte("v2"))

	val, ok := c.Get("k")
	if !ok {
		t.Fatalf("expected hit")
	}
	if string(val) != "v2" {
		t.Fatalf("expected last write 'v2', got '%s'", string(val))
	}
	if c.Len() != 1 {
		t.Fatalf("replacing a value must not grow the cache, len=%d", c.Len())
	}
}

func TestCache_CapacityBoundHolds(t *testing.T) {
	const capacity = 8
	c, _ := New(capacity)

	for i := 0; i < 100; i++ {
		c.Put(fmt.Sprintf("key-%d", i), []byte("v"))
		if c.Len() > capacity {
			t.Fatalf("size %d exceeds capacity %d after put %d", c.Len(), capacity, i)
		}
	}
	if c.Len() != capacity {
		t.Fatalf("expected cache full at %d, got %d", capacity, c.Len())
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := New(3)

	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Put("c", []byte("3"))
	c.Put("d", []byte("4")) // evicts a

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a to be evicted")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("expected %s to survive eviction", k)
		}
	}
}

// Scenario with capacity 2: put a, b, c evicts a; a get on b promotes it,
// so the next insert evicts c, not b.
func TestCache_PromotionChangesEvictionOrder(t *testing.T) {
	c, _ := New(2)

	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Put("c", []byte("3"))

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a evicted after third insert")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("expected b present")
	}

	c.Put("d", []byte("4")) // b was just used, so c is the LRU entry

	if _, ok := c.Get("c"); ok {
		t.Fatalf("expected c evicted after b's promotion")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("expected b retained")
	}
	if _, ok := c.Get("d"); !ok {
		t.Fatalf("expected d present")
	}
}

func TestCache_Delete(t *testing.T) {
	c, _ := New(4)

	c.Put("del-key", []byte("value"))

	if !c.Delete("del-key") {
		t.Fatalf("expected Delete to report presence")
	}
	if _, ok := c.Get("del-key"); ok {
		t.Fatalf("expected miss after delete")
	}
	if c.Delete("del-key") {
		t.Fatalf("second delete must report absence")
	}
	if c.Delete("never-existed") {
		t.Fatalf("delete of unknown key must report absence")
	}
}

func TestCache_Stats(t *testing.T) {
	c, _ := New(4)

	c.Put("a", []byte("1"))
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
	if stats.Items != 1 {
		t.Errorf("expected 1 item, got %d", stats.Items)
	}
}

func TestCache_GetReturnsCopy(t *testing.T) {
	c, _ := New(4)

	c.Put("k", []byte("original"))

	val, _ := c.Get("k")
	val[0] = 'X'

	val2, _ := c.Get("k")
	if string(val2) != "original" {
		t.Fatalf("caller mutation leaked into cache: got '%s'", string(val2))
	}
}

func TestCache_PutCopiesValue(t *testing.T) {
	c, _ := New(4)

	buf := []byte("original")
	c.Put("k", buf)
	buf[0] = 'X'

	val, _ := c.Get("k")
	if string(val) != "original" {
		t.Fatalf("cache aliases caller buffer: got '%s'", string(val))
	}
}

func TestCache_KeysInRecencyOrder(t *testing.T) {
	c, _ := New(3)

	c.Put("a", nil)
	c.Put("b", nil)
	c.Put("c", nil)
	c.Get("a")

	keys := c.Keys()
	want := []string{"a", "c", "b"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("recency order mismatch at %d: want %s, got %s", i, want[i], keys[i])
		}
	}
}

// With writers on disjoint keys the final size is min(distinct keys, capacity)
// and every surviving entry carries the value of its most recent put.
func TestCache_ConcurrentPuts(t *testing.T) {
	const (
		capacity = 64
		writers  = 8
		perKey   = 16
	)
	c, _ := New(capacity)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perKey; i++ {
				c.Put(fmt.Sprintf("w%d-k%d", w, i), []byte(fmt.Sprintf("w%d-v%d", w, i)))
			}
		}(w)
	}
	wg.Wait()

	distinct := writers * perKey
	want := distinct
	if want > capacity {
		want = capacity
	}
	if c.Len() != want {
		t.Fatalf("expected final size %d, got %d", want, c.Len())
	}

	seen := make(map[string]bool)
	for _, k := range c.Keys() {
		if seen[k] {
			t.Fatalf("duplicate key in cache: %s", k)
		}
		seen[k] = true
	}
}

func TestCache_ConcurrentMixedOps(t *testing.T) {
	c, _ := New(32)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%48)
				switch i % 3 {
				case 0:
					c.Put(key, []byte("v"))
				case 1:
					c.Get(key)
				default:
					c.Delete(key)
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Len() > 32 {
		t.Fatalf("capacity bound violated under concurrency: %d", c.Len())
	}
}

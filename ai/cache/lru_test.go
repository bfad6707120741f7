package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_Creation(t *testing.T) {
	testCases := []struct {
		name      string
		capacity  int
		ttl       time.Duration
		expectCap int
	}{
		{"default values", 0, 0, 1000},
		{"custom capacity", 500, 0, 500},
		{"custom TTL", 0, 10 * time.Minute, 1000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewLRUCache[string, int](tc.capacity, tc.ttl)
			assert.Equal(t, tc.expectCap, c.Capacity())
			assert.Equal(t, 0, c.Size())
		})
	}
}

func TestLRUCache_SetGet(t *testing.T) {
	c := NewLRUCache[string, []float32](100, time.Minute)

	t.Run("set and get returns value", func(t *testing.T) {
		vec := []float32{0.1, 0.2, 0.3}
		c.Set("fragrance", vec, 0)

		got, ok := c.Get("fragrance")
		require.True(t, ok)
		assert.Equal(t, vec, got)
	})

	t.Run("missing key returns false", func(t *testing.T) {
		_, ok := c.Get("missing")
		assert.False(t, ok)
	})

	t.Run("expired entry is dropped on read", func(t *testing.T) {
		c.Set("short-lived", []float32{1}, time.Millisecond)
		time.Sleep(5 * time.Millisecond)

		_, ok := c.Get("short-lived")
		assert.False(t, ok)
	})

	t.Run("overwrite refreshes value", func(t *testing.T) {
		c.Set("k", []float32{1}, 0)
		c.Set("k", []float32{2}, 0)

		got, ok := c.Get("k")
		require.True(t, ok)
		assert.Equal(t, []float32{2}, got)
	})
}

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[int, string](3, time.Minute)
	for i := 0; i < 3; i++ {
		c.Set(i, "v", 0)
	}

	// Touch 0 so it becomes most recently used, then push capacity.
	_, ok := c.Get(0)
	require.True(t, ok)
	c.Set(3, "v", 0)

	assert.Equal(t, 3, c.Size())
	_, ok = c.Get(1)
	assert.False(t, ok, "LRU entry should have been evicted")
	_, ok = c.Get(0)
	assert.True(t, ok)
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	c := NewLRUCache[string, string](10, time.Minute)
	c.Set("keep", "v", time.Minute)
	c.Set("drop-1", "v", time.Millisecond)
	c.Set("drop-2", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	removed := c.CleanupExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	c := NewLRUCache[string, int](100, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d", j%20)
				c.Set(key, n, 0)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 20)
}

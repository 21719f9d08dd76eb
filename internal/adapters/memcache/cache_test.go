package memcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	c := New()

	c.Set("k", 42, time.Minute)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New()
	current := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set("k", "v", 2*time.Second)

	_, ok := c.Get("k")
	assert.True(t, ok)

	current = current.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry expires exactly at the deadline")

	// the expired entry is dropped, not resurrected
	_, exists := c.entries["k"]
	assert.False(t, exists)
}

func TestNoExpiry(t *testing.T) {
	c := New()
	current := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set("k", "v", 0)
	current = current.Add(1000 * time.Hour)

	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestOverwriteResetsTTL(t *testing.T) {
	c := New()
	current := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set("k", 1, time.Second)
	current = current.Add(900 * time.Millisecond)
	c.Set("k", 2, time.Second)
	current = current.Add(900 * time.Millisecond)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestDelete(t *testing.T) {
	c := New()
	c.Set("k", "v", time.Minute)
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Delete("k") // no-op
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n%4)
			for j := 0; j < 100; j++ {
				c.Set(key, j, time.Minute)
				c.Get(key)
				c.Delete(key)
			}
		}(i)
	}
	wg.Wait()
}

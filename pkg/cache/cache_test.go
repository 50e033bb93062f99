package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/smoothsail/errors"
)

func TestNewLRU_InvalidSize(t *testing.T) {
	_, err := NewLRU[int](0)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLRU_GetSet(t *testing.T) {
	c, err := NewLRU[string](2)
	require.NoError(t, err)

	created, err := c.Set("a", "alpha")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("a", "alpha-2")
	require.NoError(t, err)
	assert.False(t, created, "second set updates")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alpha-2", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, int64(1), c.Stats().Hits())
	assert.Equal(t, int64(1), c.Stats().Misses())

	_, err = c.Set("", "x")
	assert.Error(t, err)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c, err := NewLRU[int](2, WithEvictionCallback[int](func(key string, _ int) {
		evicted = append(evicted, key)
	}))
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	_, _ = c.Get("a") // b is now least recently used
	_, _ = c.Set("c", 3)

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"c", "a"}, c.Keys())
	assert.Equal(t, []int{3, 1}, c.Values())
	assert.Equal(t, int64(1), c.Stats().Evictions())
}

func TestLRU_PeekDoesNotPromote(t *testing.T) {
	c, err := NewLRU[int](2)
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	v, ok := c.Peek("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, _ = c.Set("c", 3)
	_, ok = c.Peek("a")
	assert.False(t, ok, "peek must not protect a from eviction")
}

func TestLRU_DeleteAndDeleteFunc(t *testing.T) {
	c, err := NewLRU[int](10)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, _ = c.Set(fmt.Sprintf("k%d", i), i)
	}

	assert.True(t, c.Delete("k0"))
	assert.False(t, c.Delete("k0"))

	removed := c.DeleteFunc(func(_ string, v int) bool { return v%2 == 1 })
	assert.Equal(t, 3, removed)
	assert.ElementsMatch(t, []string{"k2", "k4"}, c.Keys())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLRU_Concurrent(t *testing.T) {
	c, err := NewLRU[int](50)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("%d-%d", g, i)
				_, _ = c.Set(key, i)
				_, _ = c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 50, c.Len())
}

package kv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStoreWithClock(clock.Now)

	require.NoError(t, store.Put(ctx, "a", "1", time.Minute))
	require.NoError(t, store.Put(ctx, "forever", "2", 0))

	value, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", value)

	clock.Advance(time.Minute)

	_, ok, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStorePutIfAbsentReclaimsExpired(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStoreWithClock(clock.Now)

	claimed, err := store.PutIfAbsent(ctx, "lock", "first", time.Second)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.PutIfAbsent(ctx, "lock", "second", time.Second)
	require.NoError(t, err)
	assert.False(t, claimed)

	clock.Advance(2 * time.Second)

	claimed, err = store.PutIfAbsent(ctx, "lock", "third", time.Second)
	require.NoError(t, err)
	assert.True(t, claimed)

	value, _, err := store.Get(ctx, "lock")
	require.NoError(t, err)
	assert.Equal(t, "third", value)
}

func TestMemoryStorePutIfAbsentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.PutIfAbsent(ctx, "panel", fmt.Sprint(i), time.Minute)
			if err == nil && claimed {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestMemoryStoreListPaging(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := range 5 {
		require.NoError(t, store.Put(ctx, fmt.Sprintf("batch:g:file:%02d", i), "x", time.Minute))
	}
	require.NoError(t, store.Put(ctx, "batch:other:file:01", "x", time.Minute))

	page, err := store.List(ctx, ListOptions{Prefix: "batch:g:", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"batch:g:file:00", "batch:g:file:01"}, page.Keys)
	assert.False(t, page.Complete)

	page, err = store.List(ctx, ListOptions{Prefix: "batch:g:", Cursor: page.Cursor, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"batch:g:file:02", "batch:g:file:03"}, page.Keys)

	all, err := ListAll(ctx, store, "batch:g:")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, "batch:a", "1", 0))
	require.NoError(t, store.Put(ctx, "batch:b", "1", 0))
	require.NoError(t, store.Put(ctx, "map:1:2", "1", 0))

	deleted, err := Clear(ctx, store, "batch:")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, ok, err := store.Get(ctx, "map:1:2")
	require.NoError(t, err)
	assert.True(t, ok)
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryCache() *Cache {
	return &Cache{mem: newMemCache(), pubsubHub: NewPubSubHub()}
}

func TestMemoryCacheGetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache()

	var out []string
	assert.ErrorIs(t, c.Get(ctx, KeyUnsoldItems, &out), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, KeyUnsoldItems, []string{"a", "b"}, time.Minute))
	require.NoError(t, c.Get(ctx, KeyUnsoldItems, &out))
	assert.Equal(t, []string{"a", "b"}, out)

	require.NoError(t, c.Delete(ctx, KeyUnsoldItems))
	assert.ErrorIs(t, c.Get(ctx, KeyUnsoldItems, &out), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := newMemCache()
	c.set("k", []byte("v"), 10*time.Millisecond)

	_, ok := c.get("k")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.get("k")
	assert.False(t, ok)
}

func TestInvalidateViewsDropsOwnerKeys(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache()

	require.NoError(t, c.SetUnsoldItems(ctx, []int{1}, c.ViewVersion()))
	require.NoError(t, c.SetOwnerAssets(ctx, "alice", []int{1}, c.ViewVersion()))

	c.InvalidateViews(ctx, "alice")

	var out []int
	assert.ErrorIs(t, c.GetUnsoldItems(ctx, &out), ErrCacheMiss)
	assert.ErrorIs(t, c.GetOwnerAssets(ctx, "alice", &out), ErrCacheMiss)
}

func TestStaleViewWriteDiscardedAfterInvalidation(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache()

	// A recompute captures the version, then a sale invalidates the views
	// before the recompute finishes writing.
	version := c.ViewVersion()
	c.InvalidateViews(ctx, "alice")

	require.NoError(t, c.SetUnsoldItems(ctx, []int{1}, version))
	require.NoError(t, c.SetOwnerAssets(ctx, "alice", []int{1}, version))

	var out []int
	assert.ErrorIs(t, c.GetUnsoldItems(ctx, &out), ErrCacheMiss, "write against a superseded version must not land")
	assert.ErrorIs(t, c.GetOwnerAssets(ctx, "alice", &out), ErrCacheMiss)

	// A recompute started after the invalidation writes normally.
	require.NoError(t, c.SetUnsoldItems(ctx, []int{2}, c.ViewVersion()))
	require.NoError(t, c.GetUnsoldItems(ctx, &out))
	assert.Equal(t, []int{2}, out)
}

func TestInMemoryPubSubDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newMemoryCache()
	sub := c.SubscribeInMemory(ctx, "pdx:events:SALE")
	require.NotNil(t, sub)
	defer sub.Close()

	require.NoError(t, c.Publish(ctx, "pdx:events:SALE", map[string]string{"type": "Sold"}))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "pdx:events:SALE", msg.Channel)
		assert.Contains(t, msg.Payload, "Sold")
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}

	// Messages on channels we never subscribed to are not delivered.
	require.NoError(t, c.Publish(ctx, "pdx:events:MINT", map[string]string{"type": "Minted"}))
	select {
	case msg := <-sub.Channel():
		t.Fatalf("unexpected message on %s", msg.Channel)
	case <-time.After(50 * time.Millisecond):
	}
}

package blobcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(&Options{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("payload"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache(&Options{})
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(&Options{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCacheDefaultTTLAppliesWhenUnspecified(t *testing.T) {
	c := NewMemoryCache(&Options{DefaultTTL: time.Millisecond})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	time.Sleep(5 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCacheEvictsWhenOverMaxItems(t *testing.T) {
	c := NewMemoryCache(&Options{MaxItems: 2})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))

	c.mu.RLock()
	n := len(c.items)
	c.mu.RUnlock()
	assert.LessOrEqual(t, n, 2)
}

func TestMemoryCacheDeleteAndClear(t *testing.T) {
	c := NewMemoryCache(&Options{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, c.Delete(ctx, "k"))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k1", []byte("v"), 0))
	require.NoError(t, c.Set(ctx, "k2", []byte("v"), 0))
	require.NoError(t, c.Clear(ctx))
	_, err = c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCacheClosed(t *testing.T) {
	c := NewMemoryCache(&Options{})
	require.NoError(t, c.Close())

	ctx := context.Background()
	assert.ErrorIs(t, c.Set(ctx, "k", []byte("v"), 0), ErrClosed)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestKeyComposesDocTypeDocIDAttachmentID(t *testing.T) {
	assert.Equal(t, "doc/1/att1", Key("doc", "1", "att1"))
}

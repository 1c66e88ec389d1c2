package blobcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadgerCache(t *testing.T) *BadgerCache {
	t.Helper()
	c, err := NewBadgerCache(filepath.Join(t.TempDir(), "blobs"), &Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBadgerCacheSetGet(t *testing.T) {
	c := newTestBadgerCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("payload"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestBadgerCacheMiss(t *testing.T) {
	c := newTestBadgerCache(t)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestBadgerCacheDeleteAndClear(t *testing.T) {
	c := newTestBadgerCache(t)
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

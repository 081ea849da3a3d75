package memory

import (
	"context"
	"testing"
	"time"

	"github.com/aerugo/aerugo/registry/storage/cache"
	"github.com/stretchr/testify/require"
)

func TestCacheBasics(t *testing.T) {
	ctx := context.Background()
	c := NewCache(16)

	_, ok := c.Get(ctx, cache.KindTags, "repo")
	require.False(t, ok)

	c.Set(ctx, cache.KindTags, "repo", []byte("v"), time.Minute)
	v, ok := c.Get(ctx, cache.KindTags, "repo")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	// Kinds are isolated.
	_, ok = c.Get(ctx, cache.KindCatalog, "repo")
	require.False(t, ok)

	c.Delete(ctx, cache.KindTags, "repo")
	_, ok = c.Get(ctx, cache.KindTags, "repo")
	require.False(t, ok)
}

func TestCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewCache(16)

	c.Set(ctx, cache.KindManifest, "d1", []byte("v"), time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok := c.Get(ctx, cache.KindManifest, "d1")
	require.False(t, ok, "expired entry served")
	require.Zero(t, c.Len(cache.KindManifest))
}

func TestCacheDeletePrefix(t *testing.T) {
	ctx := context.Background()
	c := NewCache(16)

	c.Set(ctx, cache.KindManifestRef, "repo/a::latest", []byte("1"), time.Minute)
	c.Set(ctx, cache.KindManifestRef, "repo/a::stable", []byte("2"), time.Minute)
	c.Set(ctx, cache.KindManifestRef, "repo/b::latest", []byte("3"), time.Minute)

	c.DeletePrefix(ctx, cache.KindManifestRef, "repo/a::")

	_, ok := c.Get(ctx, cache.KindManifestRef, "repo/a::latest")
	require.False(t, ok)
	_, ok = c.Get(ctx, cache.KindManifestRef, "repo/a::stable")
	require.False(t, ok)
	_, ok = c.Get(ctx, cache.KindManifestRef, "repo/b::latest")
	require.True(t, ok, "unrelated repository entry dropped")
}

func TestCachePurge(t *testing.T) {
	ctx := context.Background()
	c := NewCache(16)

	c.Set(ctx, cache.KindCatalog, "n=2::last=", []byte("1"), time.Minute)
	c.Set(ctx, cache.KindCatalog, "n=2::last=b", []byte("2"), time.Minute)
	c.Set(ctx, cache.KindTags, "repo", []byte("3"), time.Minute)

	c.Purge(ctx, cache.KindCatalog)

	require.Zero(t, c.Len(cache.KindCatalog))
	require.Equal(t, 1, c.Len(cache.KindTags))
}

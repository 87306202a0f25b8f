package diffcache_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"arcstack.dev/arcstack/internal/diffcache"
)

type countingHeads struct {
	calls map[string]int
}

func (c *countingHeads) ParentSHA(_ context.Context, sha string) (string, error) {
	return sha + "^", nil
}

func (c *countingHeads) FullDiff(_ context.Context, from, to string) (string, error) {
	c.calls[to]++
	return fmt.Sprintf("diff %s..%s", from, to), nil
}

type countingActive struct {
	calls map[int]int
}

func (c *countingActive) RawDiff(_ context.Context, id int) (string, error) {
	c.calls[id]++
	return fmt.Sprintf("raw %d", id), nil
}

func TestDiffCache(t *testing.T) {
	ctx := context.Background()

	t.Run("computes a head diff once across calls", func(t *testing.T) {
		heads := &countingHeads{calls: map[string]int{}}
		cache := diffcache.New(diffcache.NewMemoryCache(), heads, &countingActive{calls: map[int]int{}})

		first, err := cache.CacheHeadDiffs(ctx, []string{"abc", "abc", "def"})
		require.NoError(t, err)
		require.Equal(t, map[string]string{"abc": "diff abc^..abc", "def": "diff def^..def"}, first)

		second, err := cache.CacheHeadDiffs(ctx, []string{"abc"})
		require.NoError(t, err)
		require.Equal(t, "diff abc^..abc", second["abc"])

		require.Equal(t, 1, heads.calls["abc"])
		require.Equal(t, 1, heads.calls["def"])
	})

	t.Run("active diffs are keyed by id", func(t *testing.T) {
		mem := diffcache.NewMemoryCache()
		active := &countingActive{calls: map[int]int{}}
		cache := diffcache.New(mem, &countingHeads{calls: map[string]int{}}, active)

		got, err := cache.CacheActiveDiffs(ctx, []int{7, 9, 7})
		require.NoError(t, err)
		require.Equal(t, map[int]string{7: "raw 7", 9: "raw 9"}, got)

		stored, err := mem.GetKeys(ctx, []string{"active-diff-7", "active-diff-9"})
		require.NoError(t, err)
		require.Len(t, stored, 2)

		_, err = cache.CacheActiveDiffs(ctx, []int{9})
		require.NoError(t, err)
		require.Equal(t, 1, active.calls[9])
	})

	t.Run("nil cache always computes", func(t *testing.T) {
		active := &countingActive{calls: map[int]int{}}
		cache := diffcache.New(nil, nil, active)

		_, err := cache.CacheActiveDiffs(ctx, []int{1})
		require.NoError(t, err)
		_, err = cache.CacheActiveDiffs(ctx, []int{1})
		require.NoError(t, err)
		require.Equal(t, 2, active.calls[1])
	})

	t.Run("empty input", func(t *testing.T) {
		cache := diffcache.New(diffcache.NewMemoryCache(), nil, nil)
		got, err := cache.CacheHeadDiffs(ctx, nil)
		require.NoError(t, err)
		require.Empty(t, got)
	})
}

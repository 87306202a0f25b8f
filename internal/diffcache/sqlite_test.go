package diffcache

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSQLiteCache(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips values", func(t *testing.T) {
		c, err := OpenSQLiteCache(filepath.Join(t.TempDir(), "nested", "cache.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })

		require.NoError(t, c.SetKey(ctx, "head-diff-a", "A", TTL))
		require.NoError(t, c.SetKey(ctx, "forever", "F", 0))
		require.NoError(t, c.SetKey(ctx, "head-diff-a", "A2", TTL))

		got, err := c.GetKeys(ctx, []string{"head-diff-a", "forever", "missing"})
		require.NoError(t, err)
		require.Equal(t, map[string]string{"head-diff-a": "A2", "forever": "F"}, got)
	})

	t.Run("ignores and purges expired rows", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.db")
		c, err := OpenSQLiteCache(path)
		require.NoError(t, err)

		now := time.Unix(1_700_000_000, 0)
		c.now = func() time.Time { return now }
		require.NoError(t, c.SetKey(ctx, "k", "v", time.Hour))

		now = now.Add(2 * time.Hour)
		got, err := c.GetKeys(ctx, []string{"k"})
		require.NoError(t, err)
		require.Empty(t, got)

		require.NoError(t, c.Purge(ctx))
		var count int
		require.NoError(t, c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&count))
		require.Equal(t, 0, count)
		require.NoError(t, c.Close())
	})

	t.Run("looks up more keys than one statement can bind", func(t *testing.T) {
		c, err := OpenSQLiteCache(filepath.Join(t.TempDir(), "cache.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })

		var keys []string
		for i := 0; i < 40_000; i++ {
			keys = append(keys, fmt.Sprintf("head-diff-%d", i))
		}
		for _, i := range []int{0, 499, 500, 1234, 39_999} {
			require.NoError(t, c.SetKey(ctx, keys[i], fmt.Sprintf("diff %d", i), TTL))
		}

		got, err := c.GetKeys(ctx, keys)
		require.NoError(t, err)
		require.Len(t, got, 5)
		require.Equal(t, "diff 500", got["head-diff-500"])
		require.Equal(t, "diff 39999", got["head-diff-39999"])
	})

	t.Run("persists across opens", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.db")
		c, err := OpenSQLiteCache(path)
		require.NoError(t, err)
		require.NoError(t, c.SetKey(ctx, "active-diff-3", "raw", TTL))
		require.NoError(t, c.Close())

		c, err = OpenSQLiteCache(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		got, err := c.GetKeys(ctx, []string{"active-diff-3"})
		require.NoError(t, err)
		require.Equal(t, "raw", got["active-diff-3"])
	})
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache()
	now := time.Unix(100, 0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.SetKey(ctx, "k", "v", time.Minute))
	got, err := m.GetKeys(ctx, []string{"k"})
	require.NoError(t, err)
	require.Equal(t, "v", got["k"])

	now = now.Add(time.Minute)
	got, err = m.GetKeys(ctx, []string{"k"})
	require.NoError(t, err)
	require.Empty(t, got)
}

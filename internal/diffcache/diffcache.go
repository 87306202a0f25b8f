package diffcache

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// TTL is how long computed diffs stay cached
const TTL = 7 * 24 * time.Hour

// HeadDiffSource computes the diff a branch head introduces
type HeadDiffSource interface {
	ParentSHA(ctx context.Context, sha string) (string, error)
	FullDiff(ctx context.Context, from, to string) (string, error)
}

// ActiveDiffSource fetches the raw text of a review-service diff
type ActiveDiffSource interface {
	RawDiff(ctx context.Context, diffID int) (string, error)
}

// DiffCache memoizes head diffs and active diffs in a Cache
type DiffCache struct {
	cache  Cache
	heads  HeadDiffSource
	active ActiveDiffSource
}

// New creates a DiffCache. A nil cache computes every diff.
func New(cache Cache, heads HeadDiffSource, active ActiveDiffSource) *DiffCache {
	return &DiffCache{cache: cache, heads: heads, active: active}
}

// HeadDiffKey is the cache key of the diff introduced by commit sha
func HeadDiffKey(sha string) string {
	return "head-diff-" + sha
}

// ActiveDiffKey is the cache key of the raw text of diff id
func ActiveDiffKey(id int) string {
	return "active-diff-" + strconv.Itoa(id)
}

// CacheHeadDiffs returns the diff of each commit against its first parent,
// keyed by sha
func (d *DiffCache) CacheHeadDiffs(ctx context.Context, shas []string) (map[string]string, error) {
	return lookup(ctx, d.cache, shas, HeadDiffKey, func(ctx context.Context, sha string) (string, error) {
		parent, err := d.heads.ParentSHA(ctx, sha)
		if err != nil {
			return "", err
		}
		return d.heads.FullDiff(ctx, parent, sha)
	})
}

// CacheActiveDiffs returns the raw text of each review-service diff, keyed
// by diff id
func (d *DiffCache) CacheActiveDiffs(ctx context.Context, ids []int) (map[int]string, error) {
	return lookup(ctx, d.cache, ids, ActiveDiffKey, d.active.RawDiff)
}

// lookup dedupes ids, serves hits with one batched read, computes misses and
// writes them back.
func lookup[K comparable](
	ctx context.Context,
	cache Cache,
	ids []K,
	keyOf func(K) string,
	compute func(context.Context, K) (string, error),
) (map[K]string, error) {
	result := make(map[K]string, len(ids))
	seen := make(map[K]bool, len(ids))
	unique := make([]K, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return result, nil
	}

	hits := map[string]string{}
	if cache != nil {
		keys := make([]string, 0, len(unique))
		for _, id := range unique {
			keys = append(keys, keyOf(id))
		}
		var err error
		hits, err = cache.GetKeys(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("reading diff cache: %w", err)
		}
	}

	for _, id := range unique {
		key := keyOf(id)
		if value, ok := hits[key]; ok {
			result[id] = value
			continue
		}
		value, err := compute(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("computing %s: %w", key, err)
		}
		if cache != nil {
			if err := cache.SetKey(ctx, key, value, TTL); err != nil {
				return nil, err
			}
		}
		result[id] = value
	}
	return result, nil
}

package cache

import (
	"context"
	"encoding/json"
	"time"
)

// NullCacheValue marks a cached "not found" so repeated misses skip the source.
const NullCacheValue = "__null__"

// GetWithCached implements cache-aside with null value caching.
// Empty results are cached under emptyTTL; read or write failures of the
// cache fall through to fn.
func GetWithCached[T any](
	ctx context.Context,
	cache BasicOps,
	key string,
	ttl time.Duration,
	emptyTTL time.Duration,
	isEmpty func(T) bool,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	if cached, err := cache.Get(ctx, key); err == nil && cached != "" {
		if cached == NullCacheValue {
			return zero, nil
		}
		var result T
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			return result, nil
		}
	}

	data, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	if isEmpty(data) {
		_ = cache.Set(ctx, key, NullCacheValue, emptyTTL)
		return zero, nil
	}

	if payload, err := json.Marshal(data); err == nil {
		_ = cache.Set(ctx, key, string(payload), ttl)
	}
	return data, nil
}

package cache

import (
	"context"
	"time"
)

// Wrap returns the cached value for key, or calls fn and caches its result for ttl.
// Concurrent misses for the same key share one call to fn. Errors are not cached, and
// neither is a result whose key was invalidated while fn ran; callers arriving after
// the invalidation start a new call.
func Wrap[T any](ctx context.Context, c *TTLCache, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if v, ok := lookup[T](c, key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := lookup[T](c, key); ok {
			return v, nil
		}
		fill := c.BeginFill(key)
		defer fill.Abandon()

		fresh, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		fill.Commit(fresh, ttl)
		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// lookup treats a value of the wrong type as a miss.
func lookup[T any](c *TTLCache, key string) (T, bool) {
	v, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

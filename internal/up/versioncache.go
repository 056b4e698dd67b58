package up

import (
	"context"
	"time"
)

// VersionCache is the narrow ENVCACHE slice a backend needs to avoid
// re-querying a remote registry or forge on every up (spec.md §2's
// "consulting per-backend caches in ENVCACHE with TTLs", §4.2(3)'s "cached
// in ENVCACHE with a TTL per backend"): a TTL'd cache keyed by (backend,
// cache key), storing whatever JSON payload that backend's own resolution
// step produced. Kept as an interface, satisfied by *envcache.DB, so
// backend unit tests don't need a real database.
type VersionCache interface {
	GetCachedVersions(ctx context.Context, backend, cacheKey string) (payload string, resolvedAt time.Time, ok bool, err error)
	PutCachedVersions(ctx context.Context, backend, cacheKey, payload string) error
}

// cachedPayload returns cacheKey's cached JSON payload for backend when the
// row is still within ttl, otherwise calls fetch and, on success, writes its
// result back for next time. A disabled cache (cache nil or ttl <= 0) always
// calls fetch. TTL is authoritative for freshness; a fetch error is returned
// to the caller as-is and never touches the existing cached row (spec.md
// §9: "treat TTL as authoritative; network errors surface but do not
// invalidate").
func cachedPayload(ctx context.Context, cache VersionCache, ttl time.Duration, backend, cacheKey string, fetch func(context.Context) (string, error)) (string, error) {
	if cache != nil && ttl > 0 {
		if payload, resolvedAt, ok, err := cache.GetCachedVersions(ctx, backend, cacheKey); err == nil && ok && time.Since(resolvedAt) < ttl {
			return payload, nil
		}
	}

	payload, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	if cache != nil && ttl > 0 {
		_ = cache.PutCachedVersions(ctx, backend, cacheKey, payload)
	}
	return payload, nil
}

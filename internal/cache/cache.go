// Package cache provides an idempotent, TTL-based result cache for expensive
// remote calls. Results persist in the store, so retries and re-runs of the
// pipeline reuse prior work instead of repeating paid API calls.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/appraisement/appraisal-engine/internal/model"
	"github.com/appraisement/appraisal-engine/internal/store"
)

// Cache wraps a store with key derivation and in-process call coalescing.
type Cache struct {
	store store.Store
	group singleflight.Group
}

// New creates a Cache backed by the given store.
func New(s store.Store) *Cache {
	return &Cache{store: s}
}

// Options controls a single Fetch.
type Options struct {
	// TTL is how long a fresh result stays valid.
	TTL time.Duration
	// Force bypasses any cached value and re-executes the function. The new
	// result is written back to the cache.
	Force bool
}

// Key derives the cache key for a function and its arguments. Arguments are
// serialized to JSON; Go struct field order and sorted map keys make the
// encoding deterministic for identical inputs.
func Key(functionID string, args any) (string, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", eris.Wrapf(err, "cache: marshal args for %s", functionID)
	}
	h := sha256.New()
	h.Write([]byte(functionID))
	h.Write([]byte{0})
	h.Write(argsJSON)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fetch returns the cached result for (functionID, args) when a live entry
// exists, otherwise executes fn and caches its result. Concurrent fetches for
// the same key within this process share a single execution. The bool return
// reports whether the value came from the cache.
func Fetch[T any](ctx context.Context, c *Cache, functionID string, args any, opts Options, fn func(context.Context) (T, error)) (T, bool, error) {
	var zero T

	key, err := Key(functionID, args)
	if err != nil {
		return zero, false, err
	}

	type outcome struct {
		value  T
		cached bool
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if !opts.Force {
			entry, err := c.store.GetCacheEntry(ctx, key)
			if err != nil {
				return nil, err
			}
			if entry != nil {
				var value T
				if err := json.Unmarshal(entry.Payload, &value); err != nil {
					return nil, eris.Wrapf(err, "cache: unmarshal entry for %s", functionID)
				}
				return outcome{value: value, cached: true}, nil
			}
		}

		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}

		payload, err := json.Marshal(value)
		if err != nil {
			return nil, eris.Wrapf(err, "cache: marshal result for %s", functionID)
		}
		now := time.Now().UTC()
		putErr := c.store.PutCacheEntry(ctx, &model.CacheEntry{
			Key:        key,
			FunctionID: functionID,
			Payload:    payload,
			CachedAt:   now,
			ExpiresAt:  now.Add(opts.TTL),
		})
		if putErr != nil {
			// A write failure only loses the cache benefit; the result itself
			// is still good.
			zap.L().Warn("cache write failed",
				zap.String("function", functionID),
				zap.Error(putErr))
		}
		return outcome{value: value}, nil
	})
	if err != nil {
		return zero, false, err
	}

	out := v.(outcome)
	return out.value, out.cached, nil
}

// Purge removes expired entries and returns how many were deleted.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	return c.store.DeleteExpiredCacheEntries(ctx)
}

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appraisement/appraisal-engine/internal/store"
)

type geocodeArgs struct {
	Address string `json:"address"`
}

type geocodePoint struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	s, err := store.NewSQLite(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestKeyDeterministic(t *testing.T) {
	a, err := Key("appraisal.geocode", geocodeArgs{Address: "123 Main St"})
	require.NoError(t, err)
	b, err := Key("appraisal.geocode", geocodeArgs{Address: "123 Main St"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Key("appraisal.geocode", geocodeArgs{Address: "124 Main St"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	// Same args under a different function identity must not collide.
	d, err := Key("appraisal.search", geocodeArgs{Address: "123 Main St"})
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}

func TestFetchCachesResult(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32

	fn := func(ctx context.Context) (geocodePoint, error) {
		calls.Add(1)
		return geocodePoint{Lon: -90.69, Lat: 38.71}, nil
	}
	opts := Options{TTL: time.Hour}
	args := geocodeArgs{Address: "123 Main St"}

	got, cached, err := Fetch(ctx, c, "appraisal.geocode", args, opts, fn)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 38.71, got.Lat)

	got, cached, err = Fetch(ctx, c, "appraisal.geocode", args, opts, fn)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 38.71, got.Lat)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchForceBypassesCache(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32

	fn := func(ctx context.Context) (geocodePoint, error) {
		calls.Add(1)
		return geocodePoint{Lat: float64(calls.Load())}, nil
	}
	args := geocodeArgs{Address: "123 Main St"}

	_, _, err := Fetch(ctx, c, "appraisal.geocode", args, Options{TTL: time.Hour}, fn)
	require.NoError(t, err)

	got, cached, err := Fetch(ctx, c, "appraisal.geocode", args, Options{TTL: time.Hour, Force: true}, fn)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2.0, got.Lat)
	assert.Equal(t, int32(2), calls.Load())

	// The forced result replaced the cached one.
	got, cached, err = Fetch(ctx, c, "appraisal.geocode", args, Options{TTL: time.Hour}, fn)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 2.0, got.Lat)
}

func TestFetchExpiredEntryReexecutes(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32

	fn := func(ctx context.Context) (geocodePoint, error) {
		calls.Add(1)
		return geocodePoint{}, nil
	}
	args := geocodeArgs{Address: "9 Oak Ln"}

	_, _, err := Fetch(ctx, c, "appraisal.geocode", args, Options{TTL: -time.Minute}, fn)
	require.NoError(t, err)

	_, cached, err := Fetch(ctx, c, "appraisal.geocode", args, Options{TTL: time.Hour}, fn)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchErrorNotCached(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32

	failing := func(ctx context.Context) (geocodePoint, error) {
		calls.Add(1)
		return geocodePoint{}, assert.AnError
	}
	args := geocodeArgs{Address: "bad"}

	_, _, err := Fetch(ctx, c, "appraisal.geocode", args, Options{TTL: time.Hour}, failing)
	require.Error(t, err)

	// The failure left no entry behind; a retry executes again.
	_, cached, err := Fetch(ctx, c, "appraisal.geocode", args, Options{TTL: time.Hour}, failing)
	require.Error(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchCoalescesConcurrentCalls(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(ctx context.Context) (geocodePoint, error) {
		calls.Add(1)
		<-release
		return geocodePoint{Lat: 38.71}, nil
	}
	args := geocodeArgs{Address: "123 Main St"}

	var wg sync.WaitGroup
	results := make([]geocodePoint, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, _, err := Fetch(ctx, c, "appraisal.geocode", args, Options{TTL: time.Hour}, fn)
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}

	// Let the in-flight call gather waiters before it completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 38.71, r.Lat)
	}
}

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/upstream"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupTestCache(t *testing.T) (*ResponseCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewResponseCache(DefaultTTLPolicy(), logrus.New(), WithClock(clock.Now)), clock
}

func regionSpec(t *testing.T, region string, class models.TTLClass) models.RequestSpec {
	t.Helper()
	spec, err := models.NewRequestSpec("https://weather.example.com/v2.0/current", class, 15*time.Second,
		models.Param{Name: "region", Value: region})
	require.NoError(t, err)
	return spec
}

func countingFetcher(calls *int32, result models.FetchResult) Fetcher {
	return func(ctx context.Context, spec models.RequestSpec) models.FetchResult {
		atomic.AddInt32(calls, 1)
		return result
	}
}

func TestResponseCache_HitWithinTTL(t *testing.T) {
	c, clock := setupTestCache(t)
	spec := regionSpec(t, "edinburgh", models.TTLShort)

	stored := &models.WeatherObservation{Region: "edinburgh", Temperature: 7.5}
	c.SetAt(spec, stored, clock.Now().Add(-600*time.Second))

	var calls int32
	result := c.GetOrFetch(context.Background(), spec, countingFetcher(&calls, models.Live("fresh")))

	require.True(t, result.IsLive())
	assert.True(t, result.Cached)
	assert.Same(t, stored, result.Payload)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "cache hit must not fetch")
}

func TestResponseCache_ExpiredEntryIsAMiss(t *testing.T) {
	c, clock := setupTestCache(t)
	spec := regionSpec(t, "edinburgh", models.TTLShort)
	c.SetAt(spec, "stale", clock.Now().Add(-1801*time.Second))

	var calls int32
	result := c.GetOrFetch(context.Background(), spec, countingFetcher(&calls, models.Live("fresh")))

	require.True(t, result.IsLive())
	assert.False(t, result.Cached)
	assert.Equal(t, "fresh", result.Payload)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(1), c.Metrics().ByCategory["short"].Evictions)

	// Exactly at the TTL boundary the entry is still served.
	clock.Advance(30 * time.Minute)
	value, ok := c.Get(spec)
	assert.True(t, ok)
	assert.Equal(t, "fresh", value)

	clock.Advance(time.Nanosecond)
	_, ok = c.Get(spec)
	assert.False(t, ok)
}

func TestResponseCache_TTLClasses(t *testing.T) {
	c, clock := setupTestCache(t)
	short := regionSpec(t, "glasgow", models.TTLShort)
	medium := regionSpec(t, "north_sea", models.TTLMedium)
	long := regionSpec(t, "UK000003162", models.TTLLong)

	c.Set(short, 1)
	c.Set(medium, 2)
	c.Set(long, 3)

	clock.Advance(45 * time.Minute)
	_, ok := c.Get(short)
	assert.False(t, ok)
	_, ok = c.Get(medium)
	assert.True(t, ok)

	clock.Advance(2 * time.Hour)
	_, ok = c.Get(medium)
	assert.False(t, ok)
	_, ok = c.Get(long)
	assert.True(t, ok)
}

func TestResponseCache_DoesNotStoreFailuresOrFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		result models.FetchResult
	}{
		{"failed", models.Failed(errors.New("server_error"))},
		{"fallback", models.Fallback([]float64{1, 2}, "timeout")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := setupTestCache(t)
			spec := regionSpec(t, "islay", models.TTLShort)

			var calls int32
			for i := 0; i < 2; i++ {
				result := c.GetOrFetch(context.Background(), spec, countingFetcher(&calls, tt.result))
				assert.Equal(t, tt.result.Provenance, result.Provenance)
			}
			assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestResponseCache_CollapsesConcurrentMisses(t *testing.T) {
	c, _ := setupTestCache(t)
	spec := regionSpec(t, "dufftown", models.TTLShort)

	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, spec models.RequestSpec) models.FetchResult {
		atomic.AddInt32(&calls, 1)
		<-release
		return models.Live("shared")
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]models.FetchResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.GetOrFetch(context.Background(), spec, fetch)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		require.True(t, r.IsLive())
		assert.Equal(t, "shared", r.Payload)
	}
}

func TestResponseCache_DistinctKeysConcurrently(t *testing.T) {
	c, _ := setupTestCache(t)
	regions := []string{"edinburgh", "glasgow", "islay", "aberlour", "dufftown"}

	var wg sync.WaitGroup
	for _, region := range regions {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(region string) {
				defer wg.Done()
				spec := regionSpec(t, region, models.TTLShort)
				r := c.GetOrFetch(context.Background(), spec, func(ctx context.Context, spec models.RequestSpec) models.FetchResult {
					return models.Live(region)
				})
				assert.Equal(t, region, r.Payload)
			}(region)
		}
	}
	wg.Wait()
	assert.Equal(t, len(regions), c.Len())
}

func TestResponseCache_CallerCancellation(t *testing.T) {
	c, _ := setupTestCache(t)
	spec := regionSpec(t, "aberlour", models.TTLShort)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	fetch := func(fctx context.Context, spec models.RequestSpec) models.FetchResult {
		close(started)
		<-fctx.Done()
		return models.Failed(fctx.Err())
	}

	done := make(chan models.FetchResult, 1)
	go func() { done <- c.GetOrFetch(ctx, spec, fetch) }()

	<-started
	cancel()

	select {
	case r := <-done:
		require.True(t, r.IsFailed())
		assert.ErrorIs(t, r.Err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("GetOrFetch did not honour cancellation")
	}
}

func TestResponseCache_FollowerRefetchesAfterLeaderDeadline(t *testing.T) {
	leaderErrors := map[string]func(ctx context.Context) error{
		"deadline exceeded": func(ctx context.Context) error { return ctx.Err() },
		"canceled request error": func(ctx context.Context) error {
			return &upstream.RequestError{Kind: upstream.KindCanceled, Endpoint: "weather", Attempts: 1, Err: errors.New("request aborted")}
		},
	}
	for name, leaderErr := range leaderErrors {
		t.Run(name, func(t *testing.T) {
			c, _ := setupTestCache(t)
			spec := regionSpec(t, "islay", models.TTLShort)

			var calls int32
			started := make(chan struct{})
			fetch := func(fctx context.Context, spec models.RequestSpec) models.FetchResult {
				if atomic.AddInt32(&calls, 1) == 1 {
					close(started)
					<-fctx.Done()
					return models.Failed(leaderErr(fctx))
				}
				return models.Live("fresh")
			}

			leaderCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			leader := make(chan models.FetchResult, 1)
			go func() { leader <- c.GetOrFetch(leaderCtx, spec, fetch) }()

			<-started
			follower := c.GetOrFetch(context.Background(), spec, fetch)

			require.True(t, follower.IsLive())
			assert.Equal(t, "fresh", follower.Payload)
			assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
			assert.True(t, (<-leader).IsFailed())

			cached, ok := c.Get(spec)
			require.True(t, ok)
			assert.Equal(t, "fresh", cached)
		})
	}
}

func TestResponseCache_PurgeAndMetrics(t *testing.T) {
	c, clock := setupTestCache(t)
	c.Set(regionSpec(t, "edinburgh", models.TTLShort), 1)
	c.Set(regionSpec(t, "UK000003162", models.TTLLong), 2)

	var calls int32
	c.GetOrFetch(context.Background(), regionSpec(t, "edinburgh", models.TTLShort), countingFetcher(&calls, models.Live(0)))
	c.GetOrFetch(context.Background(), regionSpec(t, "glasgow", models.TTLShort), countingFetcher(&calls, models.Live(0)))

	clock.Advance(time.Hour)
	assert.Equal(t, 2, c.Purge(), "both short entries expire")
	assert.Equal(t, 1, c.Len())

	metrics := c.Metrics()
	assert.Equal(t, int64(1), metrics.Overall.Hits)
	assert.Equal(t, int64(1), metrics.Overall.Misses)
	assert.InDelta(t, 0.5, metrics.Overall.HitRate, 1e-9)
	assert.Equal(t, int64(2), metrics.ByCategory["short"].Evictions)
	assert.Equal(t, 1, metrics.KeyCount)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestTTLPolicyDefaults(t *testing.T) {
	policy := DefaultTTLPolicy()
	assert.Equal(t, 1800*time.Second, policy.For(models.TTLShort))
	assert.Equal(t, 3600*time.Second, policy.For(models.TTLMedium))
	assert.Equal(t, 86400*time.Second, policy.For(models.TTLLong))
}

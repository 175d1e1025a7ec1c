package snapshot_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/snapshot"
)

func gridPoints(ts time.Time, n int) []airquality.AQIPoint {
	points := make([]airquality.AQIPoint, n)
	for i := range points {
		lat := float64(i) * 0.01
		points[i] = airquality.AQIPoint{
			Timestamp: ts,
			Location:  fmt.Sprintf("P%d", i),
			Latitude:  lat,
			Longitude: 0,
			AQI:       i % 500,
		}
	}
	return points
}

func TestMemoryStore_EmptyIsNoData(t *testing.T) {
	store := snapshot.NewMemoryStore()

	_, err := store.Latest(context.Background())
	assert.ErrorIs(t, err, airquality.ErrNoData)
}

func TestMemoryStore_UpsertReplacesSameTimestamp(t *testing.T) {
	store := snapshot.NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, airquality.NewSnapshot(ts, gridPoints(ts, 10))))
	require.NoError(t, store.Upsert(ctx, airquality.NewSnapshot(ts, gridPoints(ts, 3))))

	assert.Equal(t, 1, store.Count())
	info, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, info.TotalPoints)
}

func TestMemoryStore_LatestPicksNewestTimestamp(t *testing.T) {
	store := snapshot.NewMemoryStore()
	ctx := context.Background()
	older := time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	require.NoError(t, store.Upsert(ctx, airquality.NewSnapshot(newer, gridPoints(newer, 4))))
	require.NoError(t, store.Upsert(ctx, airquality.NewSnapshot(older, gridPoints(older, 9))))

	info, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, info.Timestamp.Equal(newer))
	assert.Equal(t, 4, info.TotalPoints)
}

func TestMemoryStore_SampleStrideAndLimit(t *testing.T) {
	store := snapshot.NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, airquality.NewSnapshot(ts, gridPoints(ts, 20))))

	got, err := store.Sample(ctx, ts, 4, 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, []string{"P0", "P4", "P8", "P12", "P16"}, locations(got))

	got, err = store.Sample(ctx, ts, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"P0", "P3"}, locations(got))
}

func TestMemoryStore_InjectedError(t *testing.T) {
	store := snapshot.NewMemoryStore()
	boom := errors.New("connection reset")
	store.SetError(boom)

	err := store.Upsert(context.Background(), airquality.NewSnapshot(time.Now(), nil))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, store.Ping(context.Background()), boom)
}

func TestMemoryCache_Expiry(t *testing.T) {
	cache := snapshot.NewMemoryCache()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	cache.SetClock(func() time.Time { return now })

	points := gridPoints(now, 2)
	require.NoError(t, cache.SetLatest(ctx, airquality.NewSnapshot(now, points), time.Hour))
	require.NoError(t, cache.SetPoints(ctx, points, time.Hour))

	_, err := cache.GetLatest(ctx)
	require.NoError(t, err)
	p, err := cache.GetPoint(ctx, 0.01, 0)
	require.NoError(t, err)
	assert.Equal(t, "P1", p.Location)

	now = now.Add(time.Hour)

	_, err = cache.GetLatest(ctx)
	assert.ErrorIs(t, err, airquality.ErrCacheMiss)
	_, err = cache.GetPoint(ctx, 0.01, 0)
	assert.ErrorIs(t, err, airquality.ErrCacheMiss)
}

func locations(points []airquality.AQIPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Location
	}
	return out
}

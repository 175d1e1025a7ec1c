//go:build integration

package snapshot_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/database"
	"github.com/skyaware/skyaware/internal/snapshot"
)

// connectTestStore opens the database named by SKYAWARE_TEST_DATABASE_URL
// and empties tempo_aqi. Tests skip when the variable is unset.
func connectTestStore(t *testing.T) *snapshot.PostgresStore {
	t.Helper()

	url := os.Getenv("SKYAWARE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("skipping integration test: SKYAWARE_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Skipf("skipping integration test: database unavailable: %v", err)
	}
	require.NoError(t, database.EnsureSchema(ctx, pool))
	_, err = pool.Exec(ctx, "TRUNCATE tempo_aqi")
	require.NoError(t, err)

	return snapshot.NewPostgresStore(pool)
}

func TestPostgresStore_EmptyIsNoData(t *testing.T) {
	store := connectTestStore(t)

	_, err := store.Latest(context.Background())
	assert.ErrorIs(t, err, airquality.ErrNoData)
}

func TestPostgresStore_UpsertReplacesSameTimestamp(t *testing.T) {
	store := connectTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, airquality.NewSnapshot(ts, gridPoints(ts, 12))))
	require.NoError(t, store.Upsert(ctx, airquality.NewSnapshot(ts, gridPoints(ts, 7))))

	info, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, info.Timestamp.Equal(ts))
	assert.Equal(t, 7, info.TotalPoints)
}

func TestPostgresStore_LatestPicksNewestTimestamp(t *testing.T) {
	store := connectTestStore(t)
	ctx := context.Background()
	older := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	require.NoError(t, store.Upsert(ctx, airquality.NewSnapshot(newer, gridPoints(newer, 3))))
	require.NoError(t, store.Upsert(ctx, airquality.NewSnapshot(older, gridPoints(older, 9))))

	info, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, info.Timestamp.Equal(newer))
	assert.Equal(t, 3, info.TotalPoints)
}

func TestPostgresStore_SampleStrideAndLimit(t *testing.T) {
	store := connectTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, airquality.NewSnapshot(ts, gridPoints(ts, 10))))

	tests := []struct {
		name   string
		stride int
		limit  int
		want   []string
	}{
		{"every fourth point", 4, 0, []string{"P0", "P4", "P8"}},
		{"limit stops early", 2, 3, []string{"P0", "P2", "P4"}},
		{"stride below one reads everything", 0, 4, []string{"P0", "P1", "P2", "P3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, err := store.Sample(ctx, ts, tt.stride, tt.limit)
			require.NoError(t, err)

			got := make([]string, len(points))
			for i, p := range points {
				got[i] = p.Location
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPostgresStore_SampleUnknownTimestampIsEmpty(t *testing.T) {
	store := connectTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, airquality.NewSnapshot(ts, gridPoints(ts, 5))))

	points, err := store.Sample(ctx, ts.Add(time.Hour), 1, 0)
	require.NoError(t, err)
	assert.Empty(t, points)
}

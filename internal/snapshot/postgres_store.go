// Package snapshot implements the durable and cached snapshot stores behind
// the spatial query service.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skyaware/skyaware/internal/airquality"
)

// PostgresStore keeps one JSONB row per acquisition timestamp in tempo_aqi.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ airquality.SnapshotStore = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL snapshot store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Upsert writes the snapshot's points under its timestamp. A second write
// for the same timestamp replaces the payload in place.
func (s *PostgresStore) Upsert(ctx context.Context, snap *airquality.Snapshot) error {
	payload, err := json.Marshal(snap.Points)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO tempo_aqi (timestamp, data)
		VALUES ($1, $2)
		ON CONFLICT (timestamp) DO UPDATE SET data = EXCLUDED.data
	`

	if _, err := s.pool.Exec(ctx, query, snap.Timestamp, string(payload)); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Latest describes the most recent snapshot.
func (s *PostgresStore) Latest(ctx context.Context) (airquality.SnapshotInfo, error) {
	query := `
		SELECT timestamp, jsonb_array_length(data)
		FROM tempo_aqi
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var info airquality.SnapshotInfo
	err := s.pool.QueryRow(ctx, query).Scan(&info.Timestamp, &info.TotalPoints)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return airquality.SnapshotInfo{}, airquality.ErrNoData
		}
		return airquality.SnapshotInfo{}, fmt.Errorf("query latest snapshot: %w", err)
	}
	return info, nil
}

// Sample streams every stride-th element of the snapshot's JSONB array,
// letting Postgres do the skipping so only sampled points cross the wire.
func (s *PostgresStore) Sample(ctx context.Context, ts time.Time, stride, limit int) ([]airquality.AQIPoint, error) {
	if stride < 1 {
		stride = 1
	}
	var lim any
	if limit > 0 {
		lim = limit
	}

	query := `
		SELECT p.value
		FROM tempo_aqi t,
			jsonb_array_elements(t.data) WITH ORDINALITY AS p(value, ord)
		WHERE t.timestamp = $1
			AND (p.ord - 1) % $2 = 0
		ORDER BY p.ord
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, ts, int64(stride), lim)
	if err != nil {
		return nil, fmt.Errorf("sample snapshot: %w", err)
	}
	defer rows.Close()

	var points []airquality.AQIPoint
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		var p airquality.AQIPoint
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate points: %w", err)
	}

	return points, nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

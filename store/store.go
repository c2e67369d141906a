// Package store persists the latest scheduler snapshot and the append-only
// history log behind a Postgres-backed Store, matching the "explicit
// store" design note: replaceSnapshot(payload) is atomic, appendHistory
// appends, and readers get cloned payloads.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fennerhome/batteryctl/domain"
	_ "github.com/lib/pq"
)

// Store owns the snapshots and history tables.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and returns a Store. Callers are responsible
// for running the schema migration beforehand.
func Open(connString string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	payload JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS history (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS history_timestamp_idx ON history (timestamp);
`

// Migrate creates the snapshots/history tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("migrate store schema: %w", err)
	}
	return nil
}

// ReplaceSnapshot atomically replaces the single active snapshot row.
func (s *Store) ReplaceSnapshot(ctx context.Context, payload domain.SnapshotPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("clear prior snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots (timestamp, payload) VALUES ($1, $2)`, payload.Timestamp, data); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	return tx.Commit()
}

// LatestSnapshot returns a clone of the single active snapshot, or
// (zero value, false) when no snapshot has ever been stored.
func (s *Store) LatestSnapshot(ctx context.Context) (domain.SnapshotPayload, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots ORDER BY id DESC LIMIT 1`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return domain.SnapshotPayload{}, false, nil
		}
		return domain.SnapshotPayload{}, false, fmt.Errorf("scan snapshot: %w", err)
	}

	var payload domain.SnapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.SnapshotPayload{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return payload.Clone(), true, nil
}

// AppendHistory appends one row to the history log.
func (s *Store) AppendHistory(ctx context.Context, point domain.HistoryPoint) error {
	data, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("marshal history point: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO history (timestamp, payload) VALUES ($1, $2)`, point.Timestamp, data)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// RecentHistory returns every history row with timestamp >= since,
// ascending by timestamp.
func (s *Store) RecentHistory(ctx context.Context, since time.Time) ([]domain.HistoryPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM history WHERE timestamp >= $1 ORDER BY timestamp ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var points []domain.HistoryPoint
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		var point domain.HistoryPoint
		if err := json.Unmarshal(data, &point); err != nil {
			return nil, fmt.Errorf("unmarshal history row: %w", err)
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return points, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// SQLiteBackend journals points in the telemetry_points table.
//
// Each Commit inserts the appended point and deletes that device's rows
// beyond the bound in one transaction, so the table always mirrors the
// in-memory logs. The schema comes from the embedded migrations.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend creates a journal backend on an open, migrated database.
// The database is owned by the caller; Close does not close it.
func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// Load rebuilds the image from the journal, newest row first per device.
// An empty table yields ErrNoImage.
func (b *SQLiteBackend) Load(ctx context.Context) (*Image, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT device_id, latitude, longitude, speed, timestamp, raw
		 FROM telemetry_points
		 ORDER BY device_id, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying telemetry points: %w", ErrLoadFailed, err)
	}
	defer rows.Close()

	img := NewImage()
	for rows.Next() {
		var p telemetry.Point
		var raw string
		if err := rows.Scan(&p.DeviceID, &p.Latitude, &p.Longitude, &p.Speed, &p.Timestamp, &raw); err != nil {
			return nil, fmt.Errorf("%w: scanning telemetry point: %w", ErrLoadFailed, err)
		}
		if p.Raw, err = decodeRaw(raw); err != nil {
			return nil, fmt.Errorf("%w: decoding raw payload for %s: %w", ErrLoadFailed, p.DeviceID, err)
		}

		img.Logs[p.DeviceID] = append(img.Logs[p.DeviceID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating telemetry points: %w", ErrLoadFailed, err)
	}

	if len(img.Logs) == 0 {
		return nil, ErrNoImage
	}
	for id, log := range img.Logs {
		img.Latest[id] = log[0]
	}
	return img, nil
}

// Commit inserts the new point and trims the device's journal.
func (b *SQLiteBackend) Commit(ctx context.Context, c Change) error {
	raw, err := json.Marshal(c.Point.Raw)
	if err != nil {
		return fmt.Errorf("encoding raw payload: %w", err)
	}
	if c.Point.Raw == nil {
		raw = []byte("{}")
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO telemetry_points (device_id, latitude, longitude, speed, timestamp, raw)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.Point.DeviceID,
		c.Point.Latitude,
		c.Point.Longitude,
		c.Point.Speed,
		c.Point.Timestamp,
		string(raw),
	); err != nil {
		return fmt.Errorf("inserting telemetry point: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM telemetry_points
		 WHERE device_id = ?
		   AND id NOT IN (
		     SELECT id FROM telemetry_points
		     WHERE device_id = ?
		     ORDER BY id DESC
		     LIMIT ?
		   )`,
		c.Point.DeviceID,
		c.Point.DeviceID,
		c.MaxPoints,
	); err != nil {
		return fmt.Errorf("trimming telemetry points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing telemetry point: %w", err)
	}
	return nil
}

// Close is a no-op; the database belongs to the caller.
func (b *SQLiteBackend) Close() error {
	return nil
}

func decodeRaw(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const lastPurgeKey = "last_purge"

// GetMetadata retrieves a metadata value by key.
// Returns sql.ErrNoRows if the key doesn't exist.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// LastPurge returns when files were last deleted from the cache.
// Returns zero time if never.
func (d *Database) LastPurge(ctx context.Context) (time.Time, error) {
	value, err := d.GetMetadata(ctx, lastPurgeKey)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && value == "") {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

// SetLastPurge stores the time of the last purge.
func (d *Database) SetLastPurge(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return d.SetMetadata(ctx, lastPurgeKey, "")
	}
	return d.SetMetadata(ctx, lastPurgeKey, t.UTC().Format(time.RFC3339))
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a locator has no index entry.
var ErrNotFound = errors.New("database: entry not found")

// Entry records one cached file.
type Entry struct {
	ID          int64     `json:"id"`
	Locator     string    `json:"locator"`
	CachedPath  string    `json:"cachedPath"`
	Category    string    `json:"category"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	AccessedAt  time.Time `json:"accessedAt"`
}

const entryColumns = `id, locator, cached_path, category, size, COALESCE(content_type, ''), checksum, created_at, accessed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var created, accessed int64
	if err := row.Scan(&e.ID, &e.Locator, &e.CachedPath, &e.Category, &e.Size,
		&e.ContentType, &e.Checksum, &created, &accessed); err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(created, 0)
	e.AccessedAt = time.Unix(accessed, 0)
	return &e, nil
}

// UpsertEntry records or replaces the cached file for e.Locator.
func (d *Database) UpsertEntry(ctx context.Context, e *Entry) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_entry", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
	INSERT INTO cached_media (locator, cached_path, category, size, content_type, checksum)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(locator) DO UPDATE SET
		cached_path = excluded.cached_path,
		category = excluded.category,
		size = excluded.size,
		content_type = excluded.content_type,
		checksum = excluded.checksum,
		created_at = strftime('%s', 'now'),
		accessed_at = strftime('%s', 'now')
	`, e.Locator, e.CachedPath, e.Category, e.Size, e.ContentType, e.Checksum)
	return err
}

// GetEntry returns the entry for locator, or ErrNotFound.
func (d *Database) GetEntry(ctx context.Context, locator string) (*Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_entry", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var e *Entry
	e, err = scanEntry(d.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM cached_media WHERE locator = ?`, locator))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, ErrNotFound
	}
	return e, err
}

// TouchEntry bumps the access time of locator.
func (d *Database) TouchEntry(ctx context.Context, locator string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx,
		`UPDATE cached_media SET accessed_at = strftime('%s', 'now') WHERE locator = ?`, locator)
	return err
}

// DeleteEntries removes the entries for the given locators and returns how
// many rows were deleted.
func (d *Database) DeleteEntries(ctx context.Context, locators []string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_entry", start, err) }()

	if len(locators) == 0 {
		return 0, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var tx *sql.Tx
	tx, err = d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, locator := range locators {
		var res sql.Result
		res, err = tx.ExecContext(ctx, `DELETE FROM cached_media WHERE locator = ?`, locator)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		n, _ := res.RowsAffected()
		total += n
	}

	err = tx.Commit()
	return total, err
}

// ListEntries returns entries ordered by most recent access. An empty
// category lists every category; limit <= 0 means no limit.
func (d *Database) ListEntries(ctx context.Context, category string, limit int) ([]Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_entries", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if limit <= 0 {
		limit = -1
	}

	var rows *sql.Rows
	rows, err = d.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM cached_media
		WHERE (? = '' OR category = ?)
		ORDER BY accessed_at DESC, id DESC
		LIMIT ?`, category, category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e *Entry
		e, err = scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	err = rows.Err()
	return entries, err
}

// CountEntries returns the number of indexed files.
func (d *Database) CountEntries(ctx context.Context) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count_entries", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cached_media`).Scan(&n)
	return n, err
}

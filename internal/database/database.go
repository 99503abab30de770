package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-cache/internal/logging"
	"media-cache/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database manages the cache index.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens (creating if needed) the index at dbPath.
// dbPath is the full path to the database FILE and its parent directory
// must already exist and be writable; startup.LoadConfig checks this.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS cached_media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		locator TEXT NOT NULL UNIQUE,
		cached_path TEXT NOT NULL,
		category TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		content_type TEXT,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		accessed_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_cached_media_category ON cached_media(category);
	CREATE INDEX IF NOT EXISTS idx_cached_media_path ON cached_media(cached_path);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err = d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	err = d.runMigrations(ctx)
	return err
}

// runMigrations applies schema changes to databases created by older builds.
func (d *Database) runMigrations(ctx context.Context) error {
	// Migration 1: checksum column
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('cached_media')
		WHERE name='checksum'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for checksum column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating database: adding checksum column to cached_media table")
		if _, err := d.db.ExecContext(ctx, `ALTER TABLE cached_media ADD COLUMN checksum TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add checksum column: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Vacuum optimizes the database.
func (d *Database) Vacuum(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("%s is read-only (mode %v), this will cause write failures", path, info.Mode())
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			logging.Error("Failed to fix permissions on %s: %v", path, chmodErr)
		} else {
			logging.Info("Fixed permissions on %s", path)
		}
	}

	return nil
}

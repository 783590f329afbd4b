package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultFileName is the database file name used when none is configured.
const DefaultFileName = "harvester.db"

// ErrStoreWrite wraps every failed write so callers can tell storage
// problems apart from fetch problems.
var ErrStoreWrite = errors.New("store write failed")

// CrawlDB is the SQLite-backed work queue and content store.
// It holds the list_items queue and the detail_records table in one file.
//
// The connection pool is limited to a single connection,
// so all writes are serialized by database/sql. Batch workers call into
// the same CrawlDB concurrently without extra locking.
type CrawlDB struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
	now    func() time.Time
}

// Options configures CrawlDB behavior.
type Options struct {
	// FileName is the database file name inside the directory given to Open.
	// Defaults to DefaultFileName.
	FileName string

	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool

	// Logger receives warnings about no-op writes. Defaults to slog.Default().
	Logger *slog.Logger

	// Now returns the current time. Tests replace it with a fake clock.
	Now func() time.Time
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		FileName:          DefaultFileName,
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	fileName := opts.FileName
	if fileName == "" {
		fileName = DefaultFileName
	}
	dbPath := filepath.Join(dbDir, fileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite: mode=rw refuses to create the file, mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
		logger: logger,
		now:    now,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Work queue: one row per detail URL discovered by the list spider
	CREATE TABLE IF NOT EXISTS list_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site_name TEXT NOT NULL DEFAULT '',
		site_url TEXT NOT NULL DEFAULT '',
		detail_url TEXT NOT NULL UNIQUE,
		detail_title TEXT NOT NULL DEFAULT '',
		detail_desc TEXT NOT NULL DEFAULT '',
		detail_time TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_list_items_status ON list_items(status, id);
	CREATE INDEX IF NOT EXISTS idx_list_items_updated ON list_items(updated_at);

	-- Content store: one row per successfully fetched detail page
	CREATE TABLE IF NOT EXISTS detail_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		publish_time TEXT NOT NULL DEFAULT '',
		attachments TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_detail_records_created ON detail_records(created_at);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// timestampLayout is fixed width so that lexical order in SQLite matches
// chronological order. Times are always stored in UTC.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func (cdb *CrawlDB) timestamp() string {
	return formatTimestamp(cdb.now())
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats accepted when reading rows.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02 15:04:05", // SQLite default datetime format
	time.RFC3339Nano,
	time.RFC3339,
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Package store persists cached file versions, per-session read pointers and
// token savings counters in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database. Useful for tests.
const MemoryPath = ":memory:"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs statements against either the database or an open transaction.
type Queries struct {
	q querier
}

// DB provides database operations for the read cache.
// Calls made through the embedded Queries run outside any transaction.
type DB struct {
	db *sql.DB
	*Queries
}

// Open opens (or creates) the database at dbPath and initializes the schema.
func Open(ctx context.Context, dbPath string) (*DB, error) {
	dsn := dbPath
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL lets readers proceed while a writer holds the lock. Transactions
		// start IMMEDIATE so a read-then-write never has to upgrade its lock.
		dsn = dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	}
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{db: db, Queries: &Queries{q: db}}
	if err := d.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return d, nil
}

// Close closes the database connection. Safe to call on a nil or already
// closed DB.
func (d *DB) Close() error {
	if d == nil {
		return nil
	}
	return d.db.Close()
}

// initSchema creates the tables if they don't exist.
func (d *DB) initSchema(ctx context.Context) error {
	schema := `
	-- Immutable content snapshots, one per (path, content hash)
	CREATE TABLE IF NOT EXISTS file_versions (
		path       TEXT NOT NULL,
		hash       TEXT NOT NULL,
		content    TEXT NOT NULL,
		lines      INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (path, hash)
	);

	-- What each session last saw for each path
	CREATE TABLE IF NOT EXISTS session_reads (
		session_id TEXT NOT NULL,
		path       TEXT NOT NULL,
		hash       TEXT NOT NULL,
		read_at    INTEGER NOT NULL,
		PRIMARY KEY (session_id, path)
	);

	-- Global counters
	CREATE TABLE IF NOT EXISTS stats (
		key   TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);

	-- Per-session counters
	CREATE TABLE IF NOT EXISTS session_stats (
		session_id TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_session_reads_path ON session_reads(path);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// WithTx runs fn inside a single transaction, committing if fn returns nil.
// fn must only use the Queries it is given; d's own methods would wait for a
// connection held by the transaction.
func (d *DB) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// PurgePath deletes every version and every session pointer for path.
func (d *DB) PurgePath(ctx context.Context, path string) error {
	return d.WithTx(ctx, func(q *Queries) error {
		if err := q.PurgeVersions(ctx, path); err != nil {
			return err
		}
		return q.PurgeSessions(ctx, path)
	})
}

// AddTokensSaved bumps the global and session counters together.
func (d *DB) AddTokensSaved(ctx context.Context, sessionID string, amount int) error {
	return d.WithTx(ctx, func(q *Queries) error {
		return q.AddTokensSaved(ctx, sessionID, amount)
	})
}

// ResetAll empties every table in one transaction.
func (d *DB) ResetAll(ctx context.Context) error {
	return d.WithTx(ctx, func(q *Queries) error {
		return q.ResetAll(ctx)
	})
}

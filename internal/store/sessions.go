package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionPointer records the hash a session last observed for a path.
type SessionPointer struct {
	SessionID string
	Path      string
	Hash      string
	ReadAt    time.Time
}

// LastSeen returns the hash sessionID last observed for path.
// ok is false when the session has never read the path.
func (q *Queries) LastSeen(ctx context.Context, sessionID, path string) (hash string, ok bool, err error) {
	err = q.q.QueryRowContext(ctx, `SELECT hash FROM session_reads WHERE session_id = ? AND path = ?`, sessionID, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get last seen hash: %w", err)
	}
	return hash, true, nil
}

// RecordSeen replaces the session's pointer for path.
func (q *Queries) RecordSeen(ctx context.Context, sessionID, path, hash string, at time.Time) error {
	query := `
		INSERT INTO session_reads (session_id, path, hash, read_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, path) DO UPDATE SET
			hash = excluded.hash,
			read_at = excluded.read_at
	`
	if _, err := q.q.ExecContext(ctx, query, sessionID, path, hash, at.UnixMilli()); err != nil {
		return fmt.Errorf("failed to record read: %w", err)
	}
	return nil
}

// GetPointer returns the full pointer row, or ErrNotFound.
func (q *Queries) GetPointer(ctx context.Context, sessionID, path string) (*SessionPointer, error) {
	var p SessionPointer
	var readAt int64
	err := q.q.QueryRowContext(ctx,
		`SELECT session_id, path, hash, read_at FROM session_reads WHERE session_id = ? AND path = ?`,
		sessionID, path,
	).Scan(&p.SessionID, &p.Path, &p.Hash, &readAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pointer: %w", err)
	}
	p.ReadAt = time.UnixMilli(readAt)
	return &p, nil
}

// PurgeSessions deletes every session's pointer for path.
func (q *Queries) PurgeSessions(ctx context.Context, path string) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM session_reads WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to purge session reads: %w", err)
	}
	return nil
}

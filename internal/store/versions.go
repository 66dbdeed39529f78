package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FileVersion is one immutable snapshot of a path's content.
type FileVersion struct {
	Path      string
	Hash      string
	Content   string
	Lines     int
	CreatedAt time.Time
}

// PutVersion stores a version unless (path, hash) already exists.
// An existing row is never overwritten.
func (q *Queries) PutVersion(ctx context.Context, path, hash, content string, lines int) error {
	query := `
		INSERT INTO file_versions (path, hash, content, lines, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path, hash) DO NOTHING
	`
	_, err := q.q.ExecContext(ctx, query, path, hash, content, lines, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put version: %w", err)
	}
	return nil
}

// GetVersion returns the content stored for (path, hash), or ErrNotFound.
func (q *Queries) GetVersion(ctx context.Context, path, hash string) (string, error) {
	var content string
	err := q.q.QueryRowContext(ctx, `SELECT content FROM file_versions WHERE path = ? AND hash = ?`, path, hash).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return content, nil
}

// CountPaths returns the number of distinct paths with at least one version.
func (q *Queries) CountPaths(ctx context.Context) (int, error) {
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(DISTINCT path) FROM file_versions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count paths: %w", err)
	}
	return n, nil
}

// ListVersions returns version metadata for path, newest first.
// Content is left empty.
func (q *Queries) ListVersions(ctx context.Context, path string) ([]FileVersion, error) {
	query := `
		SELECT path, hash, lines, created_at
		FROM file_versions
		WHERE path = ?
		ORDER BY created_at DESC, hash
	`
	rows, err := q.q.QueryContext(ctx, query, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var versions []FileVersion
	for rows.Next() {
		var v FileVersion
		var createdAt int64
		if err := rows.Scan(&v.Path, &v.Hash, &v.Lines, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		v.CreatedAt = time.UnixMilli(createdAt)
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}
	return versions, nil
}

// PurgeVersions deletes every version of path.
func (q *Queries) PurgeVersions(ctx context.Context, path string) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM file_versions WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to purge versions: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const keyTokensSaved = "tokens_saved"

// ErrNegativeAmount is returned when a counter would be decremented.
var ErrNegativeAmount = errors.New("token savings must be non-negative")

// Totals holds the cumulative and per-session savings.
type Totals struct {
	Global  int64
	Session int64
}

// AddTokensSaved increments the global counter and the session counter by
// amount. Each increment is a single statement, so concurrent callers never
// lose updates. Use DB.AddTokensSaved, or call this inside WithTx, to apply
// both increments atomically.
func (q *Queries) AddTokensSaved(ctx context.Context, sessionID string, amount int) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	if amount == 0 {
		return nil
	}

	global := `
		INSERT INTO stats (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = value + excluded.value
	`
	if _, err := q.q.ExecContext(ctx, global, keyTokensSaved, amount); err != nil {
		return fmt.Errorf("failed to add global savings: %w", err)
	}

	session := `
		INSERT INTO session_stats (session_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(session_id, key) DO UPDATE SET value = value + excluded.value
	`
	if _, err := q.q.ExecContext(ctx, session, sessionID, keyTokensSaved, amount); err != nil {
		return fmt.Errorf("failed to add session savings: %w", err)
	}
	return nil
}

// Stats returns the global and per-session savings totals.
func (q *Queries) Stats(ctx context.Context, sessionID string) (Totals, error) {
	var t Totals

	err := q.q.QueryRowContext(ctx, `SELECT value FROM stats WHERE key = ?`, keyTokensSaved).Scan(&t.Global)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Totals{}, fmt.Errorf("failed to read global savings: %w", err)
	}

	err = q.q.QueryRowContext(ctx,
		`SELECT value FROM session_stats WHERE session_id = ? AND key = ?`,
		sessionID, keyTokensSaved,
	).Scan(&t.Session)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Totals{}, fmt.Errorf("failed to read session savings: %w", err)
	}

	return t, nil
}

// ResetAll deletes every version, pointer and counter.
func (q *Queries) ResetAll(ctx context.Context) error {
	for _, table := range []string{"file_versions", "session_reads", "stats", "session_stats"} {
		if _, err := q.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

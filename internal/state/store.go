// Package state persists the dispatch cursor and the render audit log.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const cursorKey = "dispatch_cursor"

// RenderStatus is the terminal outcome of a render attempt.
type RenderStatus string

const (
	RenderSucceeded RenderStatus = "succeeded"
	RenderFailed    RenderStatus = "failed"
)

// RenderRecord describes one render attempt for the audit log.
type RenderRecord struct {
	Template    string
	ArtifactKey string
	Status      RenderStatus
	Duration    time.Duration
	Error       string
}

// RenderEntry is a row read back from the render log.
type RenderEntry struct {
	ID          string       `json:"id"`
	Template    string       `json:"template"`
	ArtifactKey string       `json:"artifact_key"`
	Status      RenderStatus `json:"status"`
	DurationMS  int64        `json:"duration_ms"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Cursor returns the persisted update offset, or 0 if none has been saved.
func (s *Store) Cursor(ctx context.Context) (int64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM bot_state WHERE key = ?;", cursorKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	offset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stored cursor is not an integer: %w", err)
	}
	return offset, nil
}

// SetCursor persists the update offset. The cursor only moves forward; a
// smaller offset than the stored one is rejected.
func (s *Store) SetCursor(ctx context.Context, offset int64) error {
	cur, err := s.Cursor(ctx)
	if err != nil {
		return err
	}
	if offset < cur {
		return fmt.Errorf("cursor moved backwards: have %d, got %d", cur, offset)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO bot_state(key, value, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value = excluded.value,
  updated_at = excluded.updated_at;
`, cursorKey, strconv.FormatInt(offset, 10), now)
	if err != nil {
		return fmt.Errorf("persist cursor: %w", err)
	}
	return nil
}

// RecordRender appends a row to the render log.
func (s *Store) RecordRender(ctx context.Context, rec RenderRecord) error {
	if rec.Template == "" {
		return fmt.Errorf("template is empty")
	}
	if rec.ArtifactKey == "" {
		return fmt.Errorf("artifact key is empty")
	}

	var errVal any
	if rec.Error != "" {
		errVal = rec.Error
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO render_log(id, template, artifact_key, status, duration_ms, error, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, uuid.NewString(), rec.Template, rec.ArtifactKey, string(rec.Status),
		rec.Duration.Milliseconds(), errVal, now)
	if err != nil {
		return fmt.Errorf("insert render_log: %w", err)
	}
	return nil
}

// RecentRenders returns up to limit render log entries, newest first.
func (s *Store) RecentRenders(ctx context.Context, limit int) ([]RenderEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, template, artifact_key, status, duration_ms, error, created_at
FROM render_log
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query render_log: %w", err)
	}
	defer rows.Close()

	var out []RenderEntry
	for rows.Next() {
		var (
			e          RenderEntry
			statusS    string
			errS       sql.NullString
			createdAtS string
		)
		if err := rows.Scan(&e.ID, &e.Template, &e.ArtifactKey, &statusS,
			&e.DurationMS, &errS, &createdAtS); err != nil {
			return nil, fmt.Errorf("scan render_log: %w", err)
		}
		e.Status = RenderStatus(statusS)
		if errS.Valid {
			e.Error = errS.String
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

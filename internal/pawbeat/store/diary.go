package store

import (
	"context"
	"fmt"
	"time"
)

// DiaryEntry is one global, append-only thought, not tied to any
// participant.
type DiaryEntry struct {
	ID        int64
	Timestamp time.Time
	Thought   string
	Mood      string
}

// diaryReadCap bounds how many entries one ReadDiary call returns.
const diaryReadCap = 20

// WriteDiary appends a diary entry and returns its ID.
func (s *Store) WriteDiary(ctx context.Context, thought, mood string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO diary (thought, mood) VALUES (?, ?)",
		thought, mood,
	)
	if err != nil {
		return 0, fmt.Errorf("store: write diary: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: diary id: %w", err)
	}
	return id, nil
}

// ReadDiary returns entries from the last daysBack days, newest first,
// capped at limit (default 20).
func (s *Store) ReadDiary(ctx context.Context, daysBack, limit int) ([]DiaryEntry, error) {
	if limit <= 0 || limit > diaryReadCap {
		limit = diaryReadCap
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -daysBack).Format(sqliteTimeLayout)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, thought, mood
		FROM diary
		WHERE timestamp >= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: read diary: %w", err)
	}
	defer rows.Close()

	var entries []DiaryEntry
	for rows.Next() {
		var (
			e  DiaryEntry
			ts string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Thought, &e.Mood); err != nil {
			return nil, fmt.Errorf("store: scan diary entry: %w", err)
		}
		e.Timestamp = parseTimestamp(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

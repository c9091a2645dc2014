package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EventRecord is one deduplicated entry in the event index. Records are
// created once per unique fingerprint and never mutated.
type EventRecord struct {
	Fingerprint    string
	EventID        string
	ChannelID      string
	GuildID        string
	ParticipantID  string
	ContentPreview string
	EventTimestamp time.Time
}

// IsEventIndexed reports whether a fingerprint is already in the index.
func (s *Store) IsEventIndexed(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM indexed_events WHERE fingerprint = ? LIMIT 1", fingerprint,
	).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("store: check fingerprint: %w", err)
}

// InsertEvent stores an event record, returning false when the fingerprint
// is already present. A duplicate is expected control flow, never an
// error: INSERT OR IGNORE absorbs the race between concurrent indexers
// without parsing driver-specific constraint errors.
func (s *Store) InsertEvent(ctx context.Context, rec EventRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO indexed_events
			(fingerprint, event_id, channel_id, guild_id, participant_id, content_preview, event_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Fingerprint, rec.EventID, rec.ChannelID, rec.GuildID,
		rec.ParticipantID, rec.ContentPreview,
		rec.EventTimestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("store: insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: insert event rows: %w", err)
	}
	return n > 0, nil
}

// SearchEvents returns indexed events whose preview contains query,
// newest first.
func (s *Store) SearchEvents(ctx context.Context, query string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, event_id, channel_id, guild_id, participant_id, content_preview, event_timestamp
		FROM indexed_events
		WHERE content_preview LIKE ?
		ORDER BY event_timestamp DESC
		LIMIT ?`, "%"+query+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: search events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			rec EventRecord
			ts  string
		)
		if err := rows.Scan(&rec.Fingerprint, &rec.EventID, &rec.ChannelID, &rec.GuildID,
			&rec.ParticipantID, &rec.ContentPreview, &ts); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		rec.EventTimestamp = parseTimestamp(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Interaction is one remembered exchange with a participant. Records are
// append-only and never mutated after creation.
type Interaction struct {
	ID            int64
	ParticipantID string
	Timestamp     time.Time
	Summary       string
	WasHelpful    bool
	Mood          string
	NotableQuotes []string
}

// RecordInteraction appends an interaction record for the participant,
// creating the participant if absent. Returns the new record's ID.
func (s *Store) RecordInteraction(ctx context.Context, id, summary, mood string, wasHelpful bool, quotes ...string) (int64, error) {
	if err := s.UpsertParticipant(ctx, id, "", "", ""); err != nil {
		return 0, err
	}

	quotesJSON := "[]"
	if len(quotes) > 0 {
		encoded, err := json.Marshal(quotes)
		if err != nil {
			return 0, fmt.Errorf("store: encode quotes: %w", err)
		}
		quotesJSON = string(encoded)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO interactions (participant_id, summary, mood, was_helpful, notable_quotes) VALUES (?, ?, ?, ?, ?)",
		id, summary, mood, wasHelpful, quotesJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("store: record interaction for %s: %w", id, err)
	}
	recordID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: interaction id: %w", err)
	}
	return recordID, nil
}

// RecentInteractions returns the participant's most recent interactions,
// newest first, ties broken by insertion order.
func (s *Store) RecentInteractions(ctx context.Context, id string, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, participant_id, timestamp, summary, was_helpful, mood, notable_quotes
		FROM interactions
		WHERE participant_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, id, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: recent interactions for %s: %w", id, err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var (
			in         Interaction
			ts, quotes string
		)
		if err := rows.Scan(&in.ID, &in.ParticipantID, &ts, &in.Summary, &in.WasHelpful, &in.Mood, &quotes); err != nil {
			return nil, fmt.Errorf("store: scan interaction: %w", err)
		}
		in.Timestamp = parseTimestamp(ts)
		in.NotableQuotes = parseJSONList(quotes)
		out = append(out, in)
	}
	return out, rows.Err()
}

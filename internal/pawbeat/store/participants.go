package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Profile is everything known about one conversation participant.
type Profile struct {
	ID               string
	Username         string
	DisplayName      string
	Notes            string
	FirstSeen        time.Time
	LastSeen         time.Time
	InteractionCount int
	MeetingMood      string
	FavoriteTopics   []string
	TrustLevel       int
	Nicknames        []string
}

// Name returns the best display label for the participant.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Username != "" {
		return p.Username
	}
	return "Unknown"
}

// TrustChange records one trust adjustment, old and new values included.
type TrustChange struct {
	ParticipantID string
	Old           int
	New           int
	Delta         int
	Reason        string
	At            time.Time
}

const (
	trustDefault = 5
	trustMin     = 1
	trustMax     = 10
)

// UpsertParticipant creates the participant with defaults if absent. On
// conflict it overwrites username/display_name only when the new value is
// non-empty, always refreshes last_seen, and increments interaction_count.
// The counter increment happens inside the statement, so concurrent calls
// never lose updates.
func (s *Store) UpsertParticipant(ctx context.Context, id, username, displayName, meetingMood string) error {
	if id == "" {
		return errors.New("store: participant id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, username, display_name, meeting_mood, interaction_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE username END,
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE display_name END,
			last_seen = CURRENT_TIMESTAMP,
			interaction_count = interaction_count + 1,
			updated_at = CURRENT_TIMESTAMP`,
		id, username, displayName, meetingMood,
	)
	if err != nil {
		return fmt.Errorf("store: upsert participant %s: %w", id, err)
	}
	return nil
}

// GetProfile returns the participant's profile, or ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, id string) (Profile, error) {
	var (
		p                    Profile
		firstSeen, lastSeen  string
		topicsJSON, nickJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, display_name, notes, first_seen, last_seen,
		       interaction_count, meeting_mood, favorite_topics, trust_level, nicknames
		FROM participants WHERE id = ?`, id,
	).Scan(&p.ID, &p.Username, &p.DisplayName, &p.Notes, &firstSeen, &lastSeen,
		&p.InteractionCount, &p.MeetingMood, &topicsJSON, &p.TrustLevel, &nickJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("store: get profile %s: %w", id, err)
	}

	p.FirstSeen = parseTimestamp(firstSeen)
	p.LastSeen = parseTimestamp(lastSeen)
	p.FavoriteTopics = parseJSONList(topicsJSON)
	p.Nicknames = parseJSONList(nickJSON)
	return p, nil
}

// AppendNotes appends text to the participant's notes, newline-separated.
// The participant is created if absent. Existing notes are never replaced.
func (s *Store) AppendNotes(ctx context.Context, id, text string) error {
	if err := s.UpsertParticipant(ctx, id, "", "", ""); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE participants
		SET notes = CASE WHEN notes = '' THEN ? ELSE notes || char(10) || ? END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		text, text, id,
	)
	if err != nil {
		return fmt.Errorf("store: append notes for %s: %w", id, err)
	}
	return nil
}

// AddNickname appends nickname to the participant's ordered nickname set.
// Returns false without mutating when the nickname is already present.
func (s *Store) AddNickname(ctx context.Context, id, nickname string) (bool, error) {
	return s.appendToJSONSet(ctx, id, "nicknames", nickname)
}

// AddFavoriteTopic appends a topic to the participant's favorite topics.
// Returns false when the topic is already present.
func (s *Store) AddFavoriteTopic(ctx context.Context, id, topic string) (bool, error) {
	return s.appendToJSONSet(ctx, id, "favorite_topics", topic)
}

func (s *Store) appendToJSONSet(ctx context.Context, id, column, value string) (bool, error) {
	if err := s.UpsertParticipant(ctx, id, "", "", ""); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin %s update: %w", column, err)
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM participants WHERE id = ?", column), id,
	).Scan(&raw); err != nil {
		return false, fmt.Errorf("store: read %s for %s: %w", column, id, err)
	}

	items := parseJSONList(raw)
	for _, existing := range items {
		if existing == value {
			return false, nil
		}
	}
	items = append(items, value)
	encoded, err := json.Marshal(items)
	if err != nil {
		return false, fmt.Errorf("store: encode %s: %w", column, err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE participants SET %s = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", column),
		string(encoded), id,
	); err != nil {
		return false, fmt.Errorf("store: write %s for %s: %w", column, id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: commit %s update: %w", column, err)
	}
	return true, nil
}

// AdjustTrust shifts the participant's trust level by delta, clamped to
// [1,10], creating the participant at the default level if absent. The
// change and its reason are appended to the trust audit trail. The whole
// read-modify-write runs in one transaction so concurrent adjustments for
// the same participant never lose updates.
func (s *Store) AdjustTrust(ctx context.Context, id string, delta int, reason string) (TrustChange, error) {
	if err := s.UpsertParticipant(ctx, id, "", "", ""); err != nil {
		return TrustChange{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TrustChange{}, fmt.Errorf("store: begin trust update: %w", err)
	}
	defer tx.Rollback()

	current := trustDefault
	if err := tx.QueryRowContext(ctx,
		"SELECT trust_level FROM participants WHERE id = ?", id,
	).Scan(&current); err != nil {
		return TrustChange{}, fmt.Errorf("store: read trust for %s: %w", id, err)
	}

	updated := clampTrust(current + delta)
	if _, err := tx.ExecContext(ctx,
		"UPDATE participants SET trust_level = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		updated, id,
	); err != nil {
		return TrustChange{}, fmt.Errorf("store: write trust for %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO trust_log (participant_id, old_trust, new_trust, delta, reason) VALUES (?, ?, ?, ?, ?)",
		id, current, updated, delta, reason,
	); err != nil {
		return TrustChange{}, fmt.Errorf("store: record trust change for %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return TrustChange{}, fmt.Errorf("store: commit trust update: %w", err)
	}

	return TrustChange{ParticipantID: id, Old: current, New: updated, Delta: delta, Reason: reason}, nil
}

// TrustHistory returns the most recent trust adjustments for a
// participant, newest first.
func (s *Store) TrustHistory(ctx context.Context, id string, limit int) ([]TrustChange, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_id, old_trust, new_trust, delta, reason, timestamp
		FROM trust_log
		WHERE participant_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, id, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: trust history for %s: %w", id, err)
	}
	defer rows.Close()

	var changes []TrustChange
	for rows.Next() {
		var (
			c  TrustChange
			at string
		)
		if err := rows.Scan(&c.ParticipantID, &c.Old, &c.New, &c.Delta, &c.Reason, &at); err != nil {
			return nil, fmt.Errorf("store: scan trust change: %w", err)
		}
		c.At = parseTimestamp(at)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// summaryNoteLimit truncates notes inside a summary so one chatty profile
// cannot crowd the prompt.
const summaryNoteLimit = 200

// Summarize composes a compact profile text for prompt injection: name,
// trust and interaction count, up to 3 nicknames, up to 5 favorite topics,
// truncated notes, and up to 3 recent interaction summaries. Returns ""
// for unknown participants. It never returns an error: internal failures
// are logged and yield "".
func (s *Store) Summarize(ctx context.Context, id string) string {
	p, err := s.GetProfile(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return ""
	}
	if err != nil {
		s.logger.Warn("store: summarize failed", "participant", id, "err", err)
		return ""
	}

	head := []string{
		"User: " + p.Name(),
		fmt.Sprintf("(trust: %d/10, seen %d times)", p.TrustLevel, p.InteractionCount),
	}
	if len(p.Nicknames) > 0 {
		head = append(head, "Nicknames: "+strings.Join(truncateList(p.Nicknames, 3), ", "))
	}

	var body []string
	if len(p.FavoriteTopics) > 0 {
		body = append(body, "Likes: "+strings.Join(truncateList(p.FavoriteTopics, 5), ", "))
	}
	if p.Notes != "" {
		notes := p.Notes
		if clipped := clipRunes(notes, summaryNoteLimit); clipped != notes {
			notes = clipped + "..."
		}
		body = append(body, "Notes: "+notes)
	}

	interactions, err := s.RecentInteractions(ctx, id, 3)
	if err != nil {
		s.logger.Warn("store: summarize interactions failed", "participant", id, "err", err)
	} else if len(interactions) > 0 {
		body = append(body, "Recent interactions:")
		for _, in := range interactions {
			body = append(body, "- "+in.Summary)
		}
	}

	out := strings.Join(head, ". ")
	if len(body) > 0 {
		out += "\n" + strings.Join(body, "\n")
	}
	return out
}

func clampTrust(v int) int {
	if v < trustMin {
		return trustMin
	}
	if v > trustMax {
		return trustMax
	}
	return v
}

// clipRunes cuts s to at most n runes, never splitting a multi-byte
// sequence.
func clipRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}

func truncateList(items []string, max int) []string {
	if len(items) > max {
		return items[:max]
	}
	return items
}

// parseJSONList reads a JSON array column leniently; malformed values
// yield an empty list.
func parseJSONList(raw string) []string {
	if raw == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}

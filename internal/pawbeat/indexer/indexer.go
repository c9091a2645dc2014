// Package indexer absorbs the inbound event stream into the store's
// deduplicated event index and keeps participant profiles fresh.
//
// Deduplication is by content fingerprint, not by watermark: backfill can
// run concurrently with live ingestion without coordination because a
// duplicate insert is simply rejected.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/tgrayson/pawbeat/internal/pawbeat/gateway"
	"github.com/tgrayson/pawbeat/internal/pawbeat/store"
)

// previewLen truncates event content stored in the index; the full text is
// never needed for dedup or search context.
const previewLen = 200

// Fingerprint computes the dedup key for an event: SHA-256 over the
// event ID, channel ID, content, and author ID, in that order. Editing a
// message changes its content and therefore its fingerprint, so edits are
// indexed as new records rather than replacing the old one.
func Fingerprint(eventID, channelID, content, authorID string) string {
	sum := sha256.Sum256([]byte(eventID + ":" + channelID + ":" + content + ":" + authorID))
	return hex.EncodeToString(sum[:])
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

// Stats aggregates the outcome of a backfill walk.
type Stats struct {
	New                 int
	Skipped             int
	Processed           int
	ChannelsProcessed   int
	ParticipantsTouched int
}

func (s *Stats) add(other Stats) {
	s.New += other.New
	s.Skipped += other.Skipped
	s.Processed += other.Processed
	s.ChannelsProcessed += other.ChannelsProcessed
	s.ParticipantsTouched += other.ParticipantsTouched
}

// Indexer wires the store to a transport's history surface.
type Indexer struct {
	store     *store.Store
	transport gateway.Transport
	logger    *slog.Logger
}

// New creates an Indexer. If logger is nil, slog.Default is used.
func New(st *store.Store, transport gateway.Transport, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: st, transport: transport, logger: logger}
}

// IndexEvent records one event, returning true when it was newly indexed
// and false when its fingerprint was already known. A fresh insert also
// upserts the author's profile; a profile failure degrades to a logged
// warning since the event itself is already safely indexed.
func (ix *Indexer) IndexEvent(ctx context.Context, evt gateway.RawEvent) (bool, error) {
	fp := Fingerprint(evt.ID, evt.ChannelID, evt.Content, evt.AuthorID)

	preview := clipRunes(evt.Content, previewLen)

	inserted, err := ix.store.InsertEvent(ctx, store.EventRecord{
		Fingerprint:    fp,
		EventID:        evt.ID,
		ChannelID:      evt.ChannelID,
		GuildID:        evt.GuildID,
		ParticipantID:  evt.AuthorID,
		ContentPreview: preview,
		EventTimestamp: evt.Timestamp,
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	if err := ix.store.UpsertParticipant(ctx, evt.AuthorID, evt.AuthorName, evt.DisplayName, ""); err != nil {
		ix.logger.Warn("indexer: profile upsert failed", "participant", evt.AuthorID, "err", err)
	}
	return true, nil
}

// BackfillChannel indexes up to limit events from the last daysBack days
// of one channel. Automated authors are skipped; a store failure on one
// event is logged and never aborts the rest of the channel.
func (ix *Indexer) BackfillChannel(ctx context.Context, ch gateway.Channel, limit, daysBack int) (Stats, error) {
	after := time.Now().AddDate(0, 0, -daysBack)
	events, err := ix.transport.History(ctx, ch.ID, limit, after)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ChannelsProcessed: 1}
	touched := make(map[string]bool)
	for _, evt := range events {
		stats.Processed++

		if evt.Automated {
			stats.Skipped++
			continue
		}

		fp := Fingerprint(evt.ID, evt.ChannelID, evt.Content, evt.AuthorID)
		known, err := ix.store.IsEventIndexed(ctx, fp)
		if err != nil {
			ix.logger.Warn("indexer: fingerprint lookup failed", "channel", ch.ID, "err", err)
			continue
		}
		if known {
			stats.Skipped++
			continue
		}

		// InsertEvent still reports a duplicate if a live indexer got here
		// first; the lookup above is only a fast path.
		inserted, err := ix.IndexEvent(ctx, evt)
		if err != nil {
			ix.logger.Warn("indexer: index event failed", "channel", ch.ID, "event", evt.ID, "err", err)
			continue
		}
		if inserted {
			stats.New++
			touched[evt.AuthorID] = true
		} else {
			stats.Skipped++
		}
	}
	stats.ParticipantsTouched = len(touched)
	return stats, nil
}

// BackfillAll walks every channel the transport can list, summing stats.
// A permission denial or error on one channel is logged and never aborts
// the siblings.
func (ix *Indexer) BackfillAll(ctx context.Context, limitPerChannel, daysBack int) Stats {
	var total Stats

	channels, err := ix.transport.Channels(ctx)
	if err != nil {
		ix.logger.Error("indexer: list channels failed", "err", err)
		return total
	}

	for _, ch := range channels {
		if ctx.Err() != nil {
			return total
		}
		stats, err := ix.BackfillChannel(ctx, ch, limitPerChannel, daysBack)
		switch {
		case errors.Is(err, gateway.ErrForbidden):
			ix.logger.Info("indexer: skipping channel without history access", "channel", ch.ID, "name", ch.Name)
			continue
		case err != nil:
			ix.logger.Warn("indexer: backfill channel failed", "channel", ch.ID, "name", ch.Name, "err", err)
			continue
		}
		total.add(stats)
		if stats.New > 0 {
			ix.logger.Info("indexer: backfilled channel",
				"channel", ch.ID, "name", ch.Name,
				"new", stats.New, "skipped", stats.Skipped,
			)
		}
	}
	return total
}

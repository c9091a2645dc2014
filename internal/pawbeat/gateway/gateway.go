// Package gateway defines the chat transport surface the rest of Pawbeat
// consumes. The core never talks to a chat platform directly: it receives
// events through a Handler, reads bounded history for context, and sends
// text back. Concrete adapters live in subpackages (gateway/discord).
package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrForbidden is returned by a Transport when the bot lacks permission to
// read a channel's history or deliver to a destination. Callers skip the
// channel and keep going; it never aborts a backfill walk.
var ErrForbidden = errors.New("gateway: forbidden")

// RawEvent is one inbound chat message, platform-agnostic.
type RawEvent struct {
	ID          string
	ChannelID   string
	GuildID     string
	AuthorID    string
	AuthorName  string
	DisplayName string
	// Automated marks messages from bots and webhooks. Automated events are
	// never indexed and never answered.
	Automated bool
	Content   string
	// Attachments carries URLs only; nothing in this module downloads them.
	Attachments []string
	Timestamp   time.Time
}

// Channel identifies one readable container of events.
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Handler receives live inbound events. mentioned is true when the event
// directly addresses the bot.
type Handler func(evt RawEvent, mentioned bool)

// Transport is the outbound and history surface of a chat platform.
type Transport interface {
	// Send delivers text to a channel. May return ErrForbidden.
	Send(ctx context.Context, channelID, text string) error

	// React attaches an emoji reaction to a message. Best-effort.
	React(ctx context.Context, channelID, messageID, emoji string) error

	// History returns up to limit events from a channel, newest first,
	// excluding events older than after. A zero after means no lower bound.
	// May return ErrForbidden.
	History(ctx context.Context, channelID string, limit int, after time.Time) ([]RawEvent, error)

	// Channels lists every text channel visible to the bot across all
	// guilds.
	Channels(ctx context.Context) ([]Channel, error)
}

// Package discord adapts the Discord gateway to the pawbeat transport
// interfaces using discordgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tgrayson/pawbeat/internal/pawbeat/gateway"
)

// discordMessageLimit is Discord's hard cap on message length. Longer
// replies are split on line boundaries before sending.
const discordMessageLimit = 2000

// Config holds Discord connection configuration.
type Config struct {
	Token string
}

// Client wraps a discordgo session behind gateway.Transport.
type Client struct {
	session *discordgo.Session
	handler gateway.Handler
	logger  *slog.Logger
}

// New creates a Discord client. The session is not opened until Start.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	// Message content is a privileged intent; without it every event
	// arrives with empty content and the indexer has nothing to fingerprint.
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Client{session: session, logger: logger}, nil
}

// Start opens the gateway connection and begins delivering inbound events
// to handler. The bot's own messages are filtered out before delivery.
func (c *Client) Start(handler gateway.Handler) error {
	c.handler = handler
	c.session.AddHandler(c.onReady)
	c.session.AddHandler(c.onMessageCreate)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	return nil
}

// Stop closes the gateway connection.
func (c *Client) Stop() {
	if err := c.session.Close(); err != nil {
		c.logger.Warn("discord: close session", "err", err)
	}
}

func (c *Client) onReady(s *discordgo.Session, r *discordgo.Ready) {
	c.logger.Info("discord: connected",
		"user", r.User.Username,
		"guilds", len(r.Guilds),
	)
}

func (c *Client) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	mentioned := false
	if s.State.User != nil {
		for _, u := range m.Mentions {
			if u.ID == s.State.User.ID {
				mentioned = true
				break
			}
		}
	}

	if c.handler != nil {
		c.handler(eventFromMessage(m.Message), mentioned)
	}
}

// Send delivers text to a channel, splitting at the Discord message limit.
func (c *Client) Send(ctx context.Context, channelID, text string) error {
	for _, chunk := range splitMessage(text, discordMessageLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("discord: send to %s: %w", channelID, mapRESTError(err))
		}
	}
	return nil
}

// React attaches an emoji reaction to a message.
func (c *Client) React(ctx context.Context, channelID, messageID, emoji string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.session.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		return fmt.Errorf("discord: react in %s: %w", channelID, mapRESTError(err))
	}
	return nil
}

// History pages through channel messages newest-first until limit is
// reached or messages fall behind the after cutoff.
func (c *Client) History(ctx context.Context, channelID string, limit int, after time.Time) ([]gateway.RawEvent, error) {
	if limit <= 0 {
		return nil, nil
	}

	var events []gateway.RawEvent
	beforeID := ""
	for len(events) < limit {
		if err := ctx.Err(); err != nil {
			return events, err
		}

		batch := limit - len(events)
		if batch > 100 {
			batch = 100 // Discord API page cap
		}
		msgs, err := c.session.ChannelMessages(channelID, batch, beforeID, "", "")
		if err != nil {
			return events, fmt.Errorf("discord: history of %s: %w", channelID, mapRESTError(err))
		}
		if len(msgs) == 0 {
			break
		}

		for _, m := range msgs {
			if !after.IsZero() && m.Timestamp.Before(after) {
				return events, nil
			}
			events = append(events, eventFromMessage(m))
		}
		beforeID = msgs[len(msgs)-1].ID
		if len(msgs) < batch {
			break
		}
	}
	return events, nil
}

// Channels lists all text channels across every guild the session knows.
// Guilds that refuse the listing are logged and skipped.
func (c *Client) Channels(ctx context.Context) ([]gateway.Channel, error) {
	var out []gateway.Channel
	for _, g := range c.session.State.Guilds {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		chans, err := c.session.GuildChannels(g.ID)
		if err != nil {
			c.logger.Warn("discord: list channels", "guild", g.ID, "err", err)
			continue
		}
		for _, ch := range chans {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			out = append(out, gateway.Channel{ID: ch.ID, GuildID: g.ID, Name: ch.Name})
		}
	}
	return out, nil
}

func eventFromMessage(m *discordgo.Message) gateway.RawEvent {
	evt := gateway.RawEvent{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		evt.AuthorID = m.Author.ID
		evt.AuthorName = m.Author.Username
		evt.DisplayName = m.Author.GlobalName
		if evt.DisplayName == "" {
			evt.DisplayName = m.Author.Username
		}
		evt.Automated = m.Author.Bot || m.WebhookID != ""
	}
	for _, a := range m.Attachments {
		evt.Attachments = append(evt.Attachments, a.URL)
	}
	return evt
}

// mapRESTError converts a 403 from the Discord REST API into the
// transport-level sentinel so callers can skip the channel.
func mapRESTError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return gateway.ErrForbidden
	}
	return err
}

// splitMessage breaks text into chunks of at most limit bytes, preferring
// newline boundaries.
func splitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > limit {
		cut := limit
		for i := limit - 1; i > 0; i-- {
			if text[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
		if len(text) > 0 && text[0] == '\n' {
			text = text[1:]
		}
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

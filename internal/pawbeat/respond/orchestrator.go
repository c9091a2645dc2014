// Package respond turns a heartbeat dispatch into an actual reply: it
// assembles conversational context from the store and gateway, asks the
// generator for text, and sends it, falling back to a canned persona line
// when generation fails.
package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tgrayson/pawbeat/common/retry"
	"github.com/tgrayson/pawbeat/internal/pawbeat/gateway"
	"github.com/tgrayson/pawbeat/internal/pawbeat/generator"
	"github.com/tgrayson/pawbeat/internal/pawbeat/heartbeat"
	"github.com/tgrayson/pawbeat/internal/pawbeat/persona"
	"github.com/tgrayson/pawbeat/internal/pawbeat/store"
)

const (
	defaultHistoryLimit = 15
	dispatchTimeout     = 60 * time.Second
)

// Orchestrator handles respond and spontaneous dispatches from the
// heartbeat engine. Each dispatch is self-contained: it carries its own
// task ID, target, and context, so concurrent dispatches never share
// state.
type Orchestrator struct {
	store     *store.Store
	transport gateway.Transport
	gen       generator.Generator
	persona   *persona.Persona
	logger    *slog.Logger

	// HistoryLimit bounds how many channel events feed the prompt.
	HistoryLimit int

	retryCfg retry.Config
	roll     func() float64
}

// New creates an Orchestrator. If logger is nil, slog.Default is used.
func New(st *store.Store, transport gateway.Transport, gen generator.Generator, p *persona.Persona, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:        st,
		transport:    transport,
		gen:          gen,
		persona:      p,
		logger:       logger,
		HistoryLimit: defaultHistoryLimit,
		retryCfg:     retry.DefaultConfig,
		roll:         rand.Float64,
	}
}

// task is the per-dispatch working set.
type task struct {
	id        string
	channelID string
	target    heartbeat.Pending
	batch     []heartbeat.Pending
}

// HandleRespond answers one batch of queued events. Mentions are
// preferred as the reply target; otherwise the most recently queued
// event wins. Safe to call from a goroutine; it never panics outward.
func (o *Orchestrator) HandleRespond(batch []heartbeat.Pending) {
	if len(batch) == 0 {
		return
	}
	t := task{
		id:        uuid.NewString(),
		target:    pickTarget(batch),
		batch:     batch,
		channelID: pickTarget(batch).Event.ChannelID,
	}
	log := o.logger.With("task", t.id, "channel", t.channelID)

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	system := o.buildSystemPrompt(ctx, t)
	user := o.buildUserPrompt(ctx, t, log)

	text, err := o.generate(ctx, system, user)
	if err != nil {
		log.Warn("respond: generation failed, using fallback", "err", err)
		text = o.persona.Fallback(o.roll())
	}
	if text == "" {
		return
	}

	if err := retry.Do(ctx, o.retryCfg, func() error {
		return o.transport.Send(ctx, t.channelID, text)
	}); err != nil {
		log.Error("respond: send failed", "err", err)
		// Best-effort acknowledgement so the mention does not look ignored.
		if t.target.Mention {
			if rerr := o.transport.React(ctx, t.channelID, t.target.Event.ID, "🐾"); rerr != nil {
				log.Debug("respond: reaction fallback failed", "err", rerr)
			}
		}
		return
	}

	o.remember(ctx, t, log)
}

// HandleSpontaneous posts an unprompted line to the given channel. An
// empty channel means nothing has ever been enqueued; the dispatch is
// dropped silently.
func (o *Orchestrator) HandleSpontaneous(channelID string) {
	if channelID == "" {
		return
	}
	taskID := uuid.NewString()
	log := o.logger.With("task", taskID, "channel", channelID)

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	mood := o.persona.RandomMood(o.roll())
	system := o.persona.SystemPrompt
	if mood.Modifier != "" {
		system += "\n" + mood.Modifier
	}
	user := "Say something spontaneous and in character. One or two sentences, no preamble."

	text, err := o.generate(ctx, system, user)
	if err != nil {
		log.Debug("respond: spontaneous generation failed, using outburst", "err", err)
		text = o.persona.RandomOutburst(o.roll())
	}
	if text == "" {
		return
	}

	if err := o.transport.Send(ctx, channelID, text); err != nil {
		log.Warn("respond: spontaneous send failed", "err", err)
	}
}

func (o *Orchestrator) generate(ctx context.Context, system, user string) (string, error) {
	var text string
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  o.retryCfg.MaxAttempts,
		InitialDelay: o.retryCfg.InitialDelay,
		MaxDelay:     o.retryCfg.MaxDelay,
		ShouldRetry: func(err error) bool {
			// An unconfigured generator will never start working.
			return !errors.Is(err, generator.ErrUnconfigured)
		},
	}, func() error {
		out, err := o.gen.Generate(ctx, system, user)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	return text, err
}

// buildSystemPrompt assembles persona, mood, trust stance, and the
// target's profile summary.
func (o *Orchestrator) buildSystemPrompt(ctx context.Context, t task) string {
	parts := []string{o.persona.SystemPrompt}

	mood := o.persona.RandomMood(o.roll())
	if mood.Modifier != "" {
		parts = append(parts, mood.Modifier)
	}

	if summary := o.store.Summarize(ctx, t.target.Event.AuthorID); summary != "" {
		parts = append(parts, "What you remember about the person you are replying to:\n"+summary)
	}
	if profile, err := o.store.GetProfile(ctx, t.target.Event.AuthorID); err == nil {
		if stance := o.persona.TrustDescription(profile.TrustLevel); stance != "" {
			parts = append(parts, "Your stance toward them: "+stance)
		}
	}
	return strings.Join(parts, "\n\n")
}

// buildUserPrompt renders recent channel history oldest-first, then the
// batch that triggered the dispatch.
func (o *Orchestrator) buildUserPrompt(ctx context.Context, t task, log *slog.Logger) string {
	var b strings.Builder

	history, err := o.transport.History(ctx, t.channelID, o.HistoryLimit, time.Time{})
	if err != nil {
		log.Warn("respond: history fetch failed", "err", err)
	} else if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		// History arrives newest-first; the prompt reads oldest-first.
		for i := len(history) - 1; i >= 0; i-- {
			evt := history[i]
			fmt.Fprintf(&b, "%s: %s\n", displayName(evt), evt.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("You are replying to:\n")
	for _, p := range t.batch {
		fmt.Fprintf(&b, "%s: %s\n", displayName(p.Event), p.Event.Content)
	}
	return b.String()
}

// remember records the exchange against the target participant. Failures
// never surface; the reply already went out.
func (o *Orchestrator) remember(ctx context.Context, t task, log *slog.Logger) {
	content := t.target.Event.Content
	if clipped := clipRunes(content, 120); clipped != content {
		content = clipped + "..."
	}
	summary := fmt.Sprintf("Replied to %s about: %s", displayName(t.target.Event), content)
	if _, err := o.store.RecordInteraction(ctx, t.target.Event.AuthorID, summary, "", true); err != nil {
		log.Warn("respond: record interaction failed", "err", err)
	}
}

// pickTarget prefers the first mention in the batch, then the most
// recently queued event.
func pickTarget(batch []heartbeat.Pending) heartbeat.Pending {
	for _, p := range batch {
		if p.Mention {
			return p
		}
	}
	return batch[len(batch)-1]
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

func displayName(evt gateway.RawEvent) string {
	if evt.DisplayName != "" {
		return evt.DisplayName
	}
	if evt.AuthorName != "" {
		return evt.AuthorName
	}
	return evt.AuthorID
}

// Package heartbeat runs the periodic engagement scheduler. Every tick it
// decays accumulated interest, drains queued events, and decides between
// answering a mention, probabilistically answering other activity, or
// speaking up unprompted in a quiet room.
package heartbeat

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/tgrayson/pawbeat/internal/pawbeat/gateway"
)

// maxResponseSample caps how many queued events one response batch carries.
const maxResponseSample = 3

// Config holds the scheduler tuning knobs. Probability and boost fields
// are used exactly as given — zero is a valid setting meaning "never" —
// so callers wanting stock behaviour start from DefaultConfig and
// override. Only zero durations and capacity, which cannot drive a
// ticker or a queue, fall back to defaults.
type Config struct {
	Interval          time.Duration
	SpontaneousChance float64
	ResponseChance    float64
	MentionChance     float64
	BoostAmount       float64
	DecayAmount       float64
	DecayInterval     time.Duration
	MaxBoost          float64
	QueueCapacity     int
}

// DefaultConfig returns the stock tuning: a 5s tick, rare spontaneous
// chatter, and an interest boost that builds while the scheduler stays
// quiet and decays every 30s of silence.
func DefaultConfig() Config {
	return Config{
		Interval:          5 * time.Second,
		SpontaneousChance: 0.04,
		ResponseChance:    0.20,
		MentionChance:     1.0,
		BoostAmount:       0.15,
		DecayAmount:       0.15,
		DecayInterval:     30 * time.Second,
		MaxBoost:          0.60,
		QueueCapacity:     100,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.DecayInterval <= 0 {
		c.DecayInterval = def.DecayInterval
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	return c
}

// Pending is one queued event awaiting a tick decision.
type Pending struct {
	Event    gateway.RawEvent
	Mention  bool
	QueuedAt time.Time
}

// Engine owns the tick loop. Dispatch callbacks run on their own
// goroutines so a slow responder never stalls the loop.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	onRespond     func(batch []Pending)
	onSpontaneous func(channelID string)

	// Injectable for tests.
	now  func() time.Time
	roll func() float64
	perm func(n int) []int

	mu            sync.Mutex
	pending       []Pending
	boost         float64
	lastDecay     time.Time
	lastChannelID string
}

// New creates an Engine. onRespond receives a batch of queued events to
// answer; onSpontaneous receives the channel of the most recently queued
// event, which is empty until anything has been enqueued.
func New(cfg Config, onRespond func([]Pending), onSpontaneous func(string), logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:           cfg.withDefaults(),
		logger:        logger,
		onRespond:     onRespond,
		onSpontaneous: onSpontaneous,
		now:           time.Now,
		roll:          rand.Float64,
		perm:          rand.Perm,
	}
	e.lastDecay = e.now()
	return e
}

// Enqueue adds an event to the pending queue. When the queue is full the
// oldest entry is dropped so a flood can never grow memory unbounded.
func (e *Engine) Enqueue(evt gateway.RawEvent, mention bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) >= e.cfg.QueueCapacity {
		dropped := e.pending[0]
		e.pending = e.pending[1:]
		e.logger.Warn("heartbeat: queue full, dropping oldest", "event", dropped.Event.ID)
	}
	e.pending = append(e.pending, Pending{Event: evt, Mention: mention, QueuedAt: e.now()})
	e.lastChannelID = evt.ChannelID
}

// Run ticks until ctx is cancelled. A panic inside one tick is recovered
// and logged; the loop keeps going.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.logger.Info("heartbeat: running",
		"interval", e.cfg.Interval,
		"response_chance", e.cfg.ResponseChance,
		"spontaneous_chance", e.cfg.SpontaneousChance,
	)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("heartbeat: stopped")
			return
		case <-ticker.C:
			e.safeTick()
		}
	}
}

func (e *Engine) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("heartbeat: tick panicked", "panic", r)
		}
	}()
	e.tick(e.now())
}

// tick runs one scheduling decision at the given instant.
func (e *Engine) tick(now time.Time) {
	e.mu.Lock()

	e.applyDecayLocked(now)

	var mentions, others []Pending
	for _, p := range e.pending {
		if p.Mention {
			mentions = append(mentions, p)
		} else {
			others = append(others, p)
		}
	}
	e.pending = e.pending[:0]

	var batch []Pending
	switch {
	case len(mentions) > 0:
		if e.roll() < e.cfg.MentionChance {
			batch = mentions
		}
	case len(others) > 0:
		effective := e.effectiveResponseChanceLocked()
		if e.roll() < effective {
			batch = e.sampleLocked(others)
			e.boost = 0
		} else {
			e.boost = math.Min(e.cfg.MaxBoost, e.boost+e.cfg.BoostAmount)
			e.logger.Debug("heartbeat: held back", "boost", e.boost)
		}
	default:
		if e.roll() < e.cfg.SpontaneousChance {
			channelID := e.lastChannelID
			e.mu.Unlock()
			go e.onSpontaneous(channelID)
			return
		}
	}
	e.mu.Unlock()

	if len(batch) > 0 {
		go e.onRespond(batch)
	}
}

// applyDecayLocked fades boost by DecayAmount per full DecayInterval
// elapsed since the last decay. Partial intervals are carried forward:
// lastDecay only advances by whole intervals, so fractional progress
// toward the next decay is never lost.
func (e *Engine) applyDecayLocked(now time.Time) {
	elapsed := now.Sub(e.lastDecay)
	k := int(elapsed / e.cfg.DecayInterval)
	if k < 1 || e.boost <= 0 {
		return
	}
	e.boost = math.Max(0, e.boost-float64(k)*e.cfg.DecayAmount)
	e.lastDecay = e.lastDecay.Add(time.Duration(k) * e.cfg.DecayInterval)
}

// sampleLocked picks up to maxResponseSample events uniformly, preserving
// their queue order in the result.
func (e *Engine) sampleLocked(events []Pending) []Pending {
	if len(events) <= maxResponseSample {
		return events
	}
	chosen := make(map[int]bool, maxResponseSample)
	for _, i := range e.perm(len(events))[:maxResponseSample] {
		chosen[i] = true
	}
	out := make([]Pending, 0, maxResponseSample)
	for i, p := range events {
		if chosen[i] {
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) effectiveResponseChanceLocked() float64 {
	return math.Min(1, e.cfg.ResponseChance+e.boost)
}

// Boost returns the current accumulated interest boost.
func (e *Engine) Boost() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.boost
}

// EffectiveResponseChance returns the probability the next tick would
// answer non-mention activity.
func (e *Engine) EffectiveResponseChance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.effectiveResponseChanceLocked()
}

// PendingLen returns the number of queued events.
func (e *Engine) PendingLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Package rituals schedules the bot's recurring background habits: a
// nightly diary reflection and a daily history backfill.
package rituals

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tgrayson/pawbeat/internal/pawbeat/generator"
	"github.com/tgrayson/pawbeat/internal/pawbeat/indexer"
	"github.com/tgrayson/pawbeat/internal/pawbeat/persona"
	"github.com/tgrayson/pawbeat/internal/pawbeat/store"
)

const (
	reflectionSchedule = "30 23 * * *"
	backfillSchedule   = "0 4 * * *"

	reflectionDaysBack = 7
	backfillDaysBack   = 1
	backfillPerChannel = 200

	jobTimeout = 5 * time.Minute
)

// Config holds the ritual collaborators.
type Config struct {
	Store   *store.Store
	Indexer *indexer.Indexer
	Gen     generator.Generator
	Persona *persona.Persona
	Logger  *slog.Logger
}

// Rituals owns the cron scheduler.
type Rituals struct {
	cfg  Config
	cron *cron.Cron
	roll func() float64
}

// New creates the ritual scheduler without starting it.
func New(cfg Config) *Rituals {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Rituals{
		cfg:  cfg,
		cron: cron.New(),
		roll: rand.Float64,
	}
}

// Start registers the jobs and begins the schedule.
func (r *Rituals) Start() error {
	if _, err := r.cron.AddFunc(reflectionSchedule, r.runReflection); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(backfillSchedule, r.runBackfill); err != nil {
		return err
	}
	r.cron.Start()
	r.cfg.Logger.Info("rituals: scheduled",
		"reflection", reflectionSchedule, "backfill", backfillSchedule)
	return nil
}

// Stop halts the schedule and waits for running jobs.
func (r *Rituals) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// runReflection reads the recent diary, asks the generator for a short
// reflective thought, and appends it as a new entry. When generation is
// unavailable an outburst line stands in so the diary never goes silent.
func (r *Rituals) runReflection() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	log := r.cfg.Logger

	entries, err := r.cfg.Store.ReadDiary(ctx, reflectionDaysBack, 0)
	if err != nil {
		log.Warn("rituals: read diary failed", "err", err)
	}

	mood := r.cfg.Persona.RandomMood(r.roll())
	thought, err := r.generateReflection(ctx, entries, mood)
	if err != nil {
		log.Debug("rituals: reflection generation failed, using outburst", "err", err)
		thought = r.cfg.Persona.RandomOutburst(r.roll())
	}
	if thought == "" {
		return
	}

	if _, err := r.cfg.Store.WriteDiary(ctx, thought, mood.Name); err != nil {
		log.Warn("rituals: write diary failed", "err", err)
		return
	}
	log.Info("rituals: diary reflection written", "mood", mood.Name)
}

func (r *Rituals) generateReflection(ctx context.Context, entries []store.DiaryEntry, mood persona.Mood) (string, error) {
	system := r.cfg.Persona.SystemPrompt
	if mood.Modifier != "" {
		system += "\n" + mood.Modifier
	}

	user := "Write one short diary entry reflecting on your week. First person, two sentences at most."
	if len(entries) > 0 {
		user += "\nYour recent entries:\n"
		for _, e := range entries {
			user += "- " + e.Thought + "\n"
		}
	}
	return r.cfg.Gen.Generate(ctx, system, user)
}

// runBackfill sweeps yesterday's history across all reachable channels so
// the event index catches anything missed while offline.
func (r *Rituals) runBackfill() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	stats := r.cfg.Indexer.BackfillAll(ctx, backfillPerChannel, backfillDaysBack)
	r.cfg.Logger.Info("rituals: daily backfill done",
		"channels", stats.ChannelsProcessed,
		"new", stats.New, "skipped", stats.Skipped,
	)
}

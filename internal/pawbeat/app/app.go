// Package app wires the Pawbeat subsystems together and owns their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/tgrayson/pawbeat/common/environment"
	"github.com/tgrayson/pawbeat/internal/pawbeat/gateway"
	"github.com/tgrayson/pawbeat/internal/pawbeat/gateway/discord"
	"github.com/tgrayson/pawbeat/internal/pawbeat/generator"
	"github.com/tgrayson/pawbeat/internal/pawbeat/heartbeat"
	"github.com/tgrayson/pawbeat/internal/pawbeat/indexer"
	"github.com/tgrayson/pawbeat/internal/pawbeat/persona"
	"github.com/tgrayson/pawbeat/internal/pawbeat/respond"
	"github.com/tgrayson/pawbeat/internal/pawbeat/rituals"
	"github.com/tgrayson/pawbeat/internal/pawbeat/store"
)

// Config holds application configuration.
type Config struct {
	// DiscordToken is the bot token. Required.
	DiscordToken string

	// DatabasePath is the sqlite file location.
	DatabasePath string

	// PersonaPath points at a persona YAML file. Empty loads the
	// embedded default.
	PersonaPath string

	// OpenAIKey enables the real generator. When empty the bot runs on
	// canned persona lines only.
	OpenAIKey      string
	OpenAIBaseURL  string
	OpenAIModel    string
	OpenAITimeout  time.Duration
	Heartbeat      heartbeat.Config
	BackfillOnBoot bool
	BackfillDays   int
}

// ConfigFromEnv reads the full configuration from the environment.
func ConfigFromEnv() (*Config, error) {
	token, err := environment.RequiredString("DISCORD_TOKEN")
	if err != nil {
		return nil, err
	}

	// Unset variables keep the stock heartbeat tuning; an explicit "0"
	// is honored, turning the corresponding behaviour off entirely.
	hb := heartbeat.DefaultConfig()
	hb.Interval = environment.DurationOr("HEARTBEAT_INTERVAL", hb.Interval)
	hb.SpontaneousChance = environment.FloatOr("SPONTANEOUS_CHANCE", hb.SpontaneousChance)
	hb.ResponseChance = environment.FloatOr("RESPONSE_CHANCE", hb.ResponseChance)
	hb.MentionChance = environment.FloatOr("MENTION_CHANCE", hb.MentionChance)
	hb.BoostAmount = environment.FloatOr("BOOST_AMOUNT", hb.BoostAmount)
	hb.DecayAmount = environment.FloatOr("DECAY_AMOUNT", hb.DecayAmount)
	hb.DecayInterval = environment.DurationOr("DECAY_INTERVAL", hb.DecayInterval)
	hb.MaxBoost = environment.FloatOr("MAX_BOOST", hb.MaxBoost)
	hb.QueueCapacity = environment.IntOr("QUEUE_CAPACITY", hb.QueueCapacity)

	return &Config{
		DiscordToken:   token,
		DatabasePath:   environment.StringOr("DATABASE_PATH", "./pawbeat.db"),
		PersonaPath:    environment.StringOr("PERSONA_PATH", ""),
		OpenAIKey:      environment.StringOr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  environment.StringOr("OPENAI_BASE_URL", ""),
		OpenAIModel:    environment.StringOr("OPENAI_MODEL", ""),
		OpenAITimeout:  environment.DurationOr("OPENAI_TIMEOUT", 0),
		BackfillOnBoot: environment.BoolOr("BACKFILL_ON_BOOT", true),
		BackfillDays:   environment.IntOr("BACKFILL_DAYS", 7),
		Heartbeat:      hb,
	}, nil
}

// App is the assembled Pawbeat application.
type App struct {
	config  *Config
	store   *store.Store
	client  *discord.Client
	engine  *heartbeat.Engine
	indexer *indexer.Indexer
	rituals *rituals.Rituals
	logger  *slog.Logger
}

// New assembles the application from config. Nothing starts running until
// Run is called.
func New(config *Config) (*App, error) {
	logger := slog.Default()

	logger.Info("opening database", "path", config.DatabasePath)
	st, err := store.Open(config.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	p, err := persona.Load(config.PersonaPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load persona: %w", err)
	}

	var gen generator.Generator
	if config.OpenAIKey != "" {
		gen = generator.NewOpenAI(generator.Config{
			APIKey:  config.OpenAIKey,
			BaseURL: config.OpenAIBaseURL,
			Model:   config.OpenAIModel,
			Timeout: config.OpenAITimeout,
		})
		logger.Info("generator ready", "model", config.OpenAIModel)
	} else {
		gen = generator.NewNoop()
		logger.Warn("no OPENAI_API_KEY set; running on canned persona lines only")
	}

	client, err := discord.New(discord.Config{Token: config.DiscordToken}, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize Discord client: %w", err)
	}

	ix := indexer.New(st, client, logger)
	orch := respond.New(st, client, gen, p, logger)
	engine := heartbeat.New(config.Heartbeat, orch.HandleRespond, orch.HandleSpontaneous, logger)
	rit := rituals.New(rituals.Config{
		Store:   st,
		Indexer: ix,
		Gen:     gen,
		Persona: p,
		Logger:  logger,
	})

	return &App{
		config:  config,
		store:   st,
		client:  client,
		engine:  engine,
		indexer: ix,
		rituals: rit,
		logger:  logger,
	}, nil
}

// Run connects the gateway and blocks until an interrupt or terminate
// signal arrives.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.client.Start(a.handleEvent); err != nil {
		return fmt.Errorf("failed to connect gateway: %w", err)
	}

	if a.config.BackfillOnBoot {
		go func() {
			stats := a.indexer.BackfillAll(ctx, 200, a.config.BackfillDays)
			a.logger.Info("startup backfill done",
				"channels", stats.ChannelsProcessed,
				"new", stats.New, "skipped", stats.Skipped,
			)
		}()
	}

	if err := a.rituals.Start(); err != nil {
		return fmt.Errorf("failed to start rituals: %w", err)
	}

	go a.engine.Run(ctx)

	a.logger.Info("pawbeat running")
	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}

// handleEvent is the gateway callback: every inbound event is indexed
// and queued for the heartbeat to consider.
func (a *App) handleEvent(evt gateway.RawEvent, mentioned bool) {
	if evt.Automated {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := a.indexer.IndexEvent(ctx, evt); err != nil {
		a.logger.Warn("index inbound event failed", "event", evt.ID, "err", err)
	}

	a.engine.Enqueue(evt, mentioned)
}

// Stop tears everything down in reverse start order.
func (a *App) Stop() {
	if a.rituals != nil {
		a.rituals.Stop()
	}
	if a.client != nil {
		a.client.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("database close failed", "err", err)
		}
	}
}

package app

import (
	"testing"
	"time"

	"github.com/tgrayson/pawbeat/internal/pawbeat/heartbeat"
)

func TestConfigFromEnv_RequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("expected error without DISCORD_TOKEN")
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	// Empty values read as unset, shielding the test from ambient env.
	for _, name := range []string{
		"HEARTBEAT_INTERVAL", "SPONTANEOUS_CHANCE", "RESPONSE_CHANCE",
		"MENTION_CHANCE", "BOOST_AMOUNT", "DECAY_AMOUNT",
		"DECAY_INTERVAL", "MAX_BOOST", "QUEUE_CAPACITY",
	} {
		t.Setenv(name, "")
	}

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.DatabasePath != "./pawbeat.db" {
		t.Errorf("DatabasePath: got %q", cfg.DatabasePath)
	}
	if cfg.Heartbeat != heartbeat.DefaultConfig() {
		t.Errorf("unset heartbeat env: got %+v, want stock defaults", cfg.Heartbeat)
	}
}

func TestConfigFromEnv_ZeroChancesSurvive(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("RESPONSE_CHANCE", "0")
	t.Setenv("SPONTANEOUS_CHANCE", "0.0")
	t.Setenv("MENTION_CHANCE", "0")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Heartbeat.ResponseChance != 0 {
		t.Errorf("ResponseChance: got %v, want 0", cfg.Heartbeat.ResponseChance)
	}
	if cfg.Heartbeat.SpontaneousChance != 0 {
		t.Errorf("SpontaneousChance: got %v, want 0", cfg.Heartbeat.SpontaneousChance)
	}
	if cfg.Heartbeat.MentionChance != 0 {
		t.Errorf("MentionChance: got %v, want 0", cfg.Heartbeat.MentionChance)
	}
	// Knobs left unset keep their stock values.
	if cfg.Heartbeat.Interval != 5*time.Second {
		t.Errorf("Interval: got %v, want 5s", cfg.Heartbeat.Interval)
	}
	if cfg.Heartbeat.MaxBoost != 0.60 {
		t.Errorf("MaxBoost: got %v, want 0.60", cfg.Heartbeat.MaxBoost)
	}
}

func TestConfigFromEnv_ExplicitOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("HEARTBEAT_INTERVAL", "2s")
	t.Setenv("QUEUE_CAPACITY", "10")
	t.Setenv("RESPONSE_CHANCE", "0.5")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Heartbeat.Interval != 2*time.Second {
		t.Errorf("Interval: got %v, want 2s", cfg.Heartbeat.Interval)
	}
	if cfg.Heartbeat.QueueCapacity != 10 {
		t.Errorf("QueueCapacity: got %d, want 10", cfg.Heartbeat.QueueCapacity)
	}
	if cfg.Heartbeat.ResponseChance != 0.5 {
		t.Errorf("ResponseChance: got %v, want 0.5", cfg.Heartbeat.ResponseChance)
	}
}

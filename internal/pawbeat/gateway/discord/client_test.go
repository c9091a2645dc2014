package discord

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tgrayson/pawbeat/internal/pawbeat/gateway"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"empty", "", 10, nil},
		{"under limit", "hello", 10, []string{"hello"}},
		{"exact limit", "1234567890", 10, []string{"1234567890"}},
		{
			"splits on newline",
			"first line\nsecond line",
			15,
			[]string{"first line", "second line"},
		},
		{
			"hard split without newline",
			strings.Repeat("a", 25),
			10,
			[]string{strings.Repeat("a", 10), strings.Repeat("a", 10), strings.Repeat("a", 5)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMessage(tt.text, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("chunks: got %d %q, want %d %q", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d: got %q, want %q", i, got[i], tt.want[i])
				}
				if len(got[i]) > tt.limit {
					t.Errorf("chunk %d exceeds limit: %d bytes", i, len(got[i]))
				}
			}
		})
	}
}

func TestEventFromMessage(t *testing.T) {
	ts := time.Now()
	m := &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   "hello there",
		Timestamp: ts,
		Author: &discordgo.User{
			ID:         "u1",
			Username:   "alice",
			GlobalName: "Alice",
		},
		Attachments: []*discordgo.MessageAttachment{{URL: "https://cdn.example/a.png"}},
	}

	evt := eventFromMessage(m)
	if evt.ID != "m1" || evt.ChannelID != "c1" || evt.GuildID != "g1" {
		t.Errorf("ids: got %+v", evt)
	}
	if evt.AuthorName != "alice" || evt.DisplayName != "Alice" {
		t.Errorf("author: got %q / %q", evt.AuthorName, evt.DisplayName)
	}
	if evt.Automated {
		t.Error("human author marked automated")
	}
	if len(evt.Attachments) != 1 || evt.Attachments[0] != "https://cdn.example/a.png" {
		t.Errorf("attachments: got %v", evt.Attachments)
	}
	if !evt.Timestamp.Equal(ts) {
		t.Errorf("timestamp: got %v, want %v", evt.Timestamp, ts)
	}
}

func TestEventFromMessage_DisplayNameFallsBackToUsername(t *testing.T) {
	m := &discordgo.Message{
		ID:     "m1",
		Author: &discordgo.User{ID: "u1", Username: "alice"},
	}

	evt := eventFromMessage(m)
	if evt.DisplayName != "alice" {
		t.Errorf("DisplayName: got %q, want username fallback", evt.DisplayName)
	}
}

func TestEventFromMessage_MarksAutomated(t *testing.T) {
	bot := eventFromMessage(&discordgo.Message{
		ID:     "m1",
		Author: &discordgo.User{ID: "b1", Username: "botty", Bot: true},
	})
	if !bot.Automated {
		t.Error("bot author not marked automated")
	}

	webhook := eventFromMessage(&discordgo.Message{
		ID:        "m2",
		WebhookID: "w1",
		Author:    &discordgo.User{ID: "w1", Username: "hook"},
	})
	if !webhook.Automated {
		t.Error("webhook message not marked automated")
	}
}

func TestMapRESTError(t *testing.T) {
	forbidden := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusForbidden},
	}
	if got := mapRESTError(forbidden); !errors.Is(got, gateway.ErrForbidden) {
		t.Errorf("403: got %v, want ErrForbidden", got)
	}

	notFound := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusNotFound},
	}
	if got := mapRESTError(notFound); errors.Is(got, gateway.ErrForbidden) {
		t.Error("404 mapped to ErrForbidden")
	}

	plain := errors.New("network down")
	if got := mapRESTError(plain); got != plain {
		t.Errorf("plain error changed: %v", got)
	}
}

func TestNew_RequiresToken(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error for empty token")
	}

	c, err := New(Config{Token: "t"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.session.Identify.Intents&discordgo.IntentsMessageContent == 0 {
		t.Error("message content intent not requested")
	}
}

package indexer_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/tgrayson/pawbeat/internal/pawbeat/gateway"
	"github.com/tgrayson/pawbeat/internal/pawbeat/indexer"
	"github.com/tgrayson/pawbeat/internal/pawbeat/store"
)

// fakeTransport serves canned history per channel and records sends.
type fakeTransport struct {
	channels  []gateway.Channel
	history   map[string][]gateway.RawEvent
	forbidden map[string]bool
}

func (f *fakeTransport) Send(ctx context.Context, channelID, text string) error { return nil }
func (f *fakeTransport) React(ctx context.Context, channelID, messageID, emoji string) error {
	return nil
}

func (f *fakeTransport) History(ctx context.Context, channelID string, limit int, after time.Time) ([]gateway.RawEvent, error) {
	if f.forbidden[channelID] {
		return nil, gateway.ErrForbidden
	}
	return f.history[channelID], nil
}

func (f *fakeTransport) Channels(ctx context.Context) ([]gateway.Channel, error) {
	return f.channels, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indexer-test.db")
	s, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rawEvent(id, channel, author, content string) gateway.RawEvent {
	return gateway.RawEvent{
		ID:         id,
		ChannelID:  channel,
		AuthorID:   author,
		AuthorName: "name-" + author,
		Content:    content,
		Timestamp:  time.Now(),
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := indexer.Fingerprint("m1", "c1", "hello", "u1")
	b := indexer.Fingerprint("m1", "c1", "hello", "u1")
	if a != b {
		t.Errorf("same inputs produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length: got %d, want 64 hex chars", len(a))
	}
}

func TestFingerprint_SensitiveToEveryField(t *testing.T) {
	base := indexer.Fingerprint("m1", "c1", "hello", "u1")
	variants := []string{
		indexer.Fingerprint("m2", "c1", "hello", "u1"),
		indexer.Fingerprint("m1", "c2", "hello", "u1"),
		indexer.Fingerprint("m1", "c1", "hello!", "u1"),
		indexer.Fingerprint("m1", "c1", "hello", "u2"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with base fingerprint", i)
		}
	}
}

func TestIndexEvent_NewThenDuplicate(t *testing.T) {
	s := newTestStore(t)
	ix := indexer.New(s, &fakeTransport{}, nil)
	ctx := context.Background()

	evt := rawEvent("m1", "c1", "u1", "hello")

	inserted, err := ix.IndexEvent(ctx, evt)
	if err != nil {
		t.Fatalf("first IndexEvent: %v", err)
	}
	if !inserted {
		t.Error("first IndexEvent: got false, want true")
	}

	inserted, err = ix.IndexEvent(ctx, evt)
	if err != nil {
		t.Fatalf("second IndexEvent: %v", err)
	}
	if inserted {
		t.Error("second IndexEvent: got true, want false")
	}

	// The author's profile was created from the first insert.
	p, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Username != "name-u1" {
		t.Errorf("Username: got %q, want name-u1", p.Username)
	}
	if p.InteractionCount != 1 {
		t.Errorf("InteractionCount: got %d, want 1", p.InteractionCount)
	}
}

func TestBackfillChannel_SkipsAutomatedAndKnown(t *testing.T) {
	s := newTestStore(t)
	bot := rawEvent("m3", "c1", "bot", "beep")
	bot.Automated = true

	ft := &fakeTransport{
		history: map[string][]gateway.RawEvent{
			"c1": {
				rawEvent("m1", "c1", "u1", "hello"),
				rawEvent("m2", "c1", "u2", "hi there"),
				bot,
			},
		},
	}
	ix := indexer.New(s, ft, nil)
	ctx := context.Background()

	// Pre-index m1 to simulate a previous session.
	if _, err := ix.IndexEvent(ctx, rawEvent("m1", "c1", "u1", "hello")); err != nil {
		t.Fatalf("pre-index: %v", err)
	}

	stats, err := ix.BackfillChannel(ctx, gateway.Channel{ID: "c1"}, 100, 7)
	if err != nil {
		t.Fatalf("BackfillChannel: %v", err)
	}
	if stats.New != 1 {
		t.Errorf("New: got %d, want 1", stats.New)
	}
	if stats.Skipped != 2 {
		t.Errorf("Skipped: got %d, want 2", stats.Skipped)
	}
	if stats.Processed != 3 {
		t.Errorf("Processed: got %d, want 3", stats.Processed)
	}
	if stats.ParticipantsTouched != 1 {
		t.Errorf("ParticipantsTouched: got %d, want 1", stats.ParticipantsTouched)
	}
}

func TestBackfillChannel_ReplayIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ft := &fakeTransport{
		history: map[string][]gateway.RawEvent{
			"c1": {
				rawEvent("m1", "c1", "u1", "hello"),
				rawEvent("m2", "c1", "u1", "again"),
			},
		},
	}
	ix := indexer.New(s, ft, nil)
	ctx := context.Background()

	first, err := ix.BackfillChannel(ctx, gateway.Channel{ID: "c1"}, 100, 7)
	if err != nil {
		t.Fatalf("first backfill: %v", err)
	}
	if first.New != 2 {
		t.Fatalf("first New: got %d, want 2", first.New)
	}

	second, err := ix.BackfillChannel(ctx, gateway.Channel{ID: "c1"}, 100, 7)
	if err != nil {
		t.Fatalf("second backfill: %v", err)
	}
	if second.New != 0 {
		t.Errorf("second New: got %d, want 0", second.New)
	}
	if second.Skipped != 2 {
		t.Errorf("second Skipped: got %d, want 2", second.Skipped)
	}
}

func TestBackfillAll_ToleratesForbiddenChannel(t *testing.T) {
	s := newTestStore(t)
	ft := &fakeTransport{
		channels: []gateway.Channel{
			{ID: "c1", Name: "general"},
			{ID: "c2", Name: "secret"},
		},
		history: map[string][]gateway.RawEvent{
			"c1": {rawEvent("m1", "c1", "u1", "hello")},
		},
		forbidden: map[string]bool{"c2": true},
	}
	ix := indexer.New(s, ft, nil)

	stats := ix.BackfillAll(context.Background(), 100, 7)
	if stats.New != 1 {
		t.Errorf("New: got %d, want 1", stats.New)
	}
	if stats.ChannelsProcessed != 1 {
		t.Errorf("ChannelsProcessed: got %d, want 1", stats.ChannelsProcessed)
	}
}

func TestBackfillAll_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	ft := &fakeTransport{
		channels: []gateway.Channel{{ID: "c1"}},
		history:  map[string][]gateway.RawEvent{"c1": {rawEvent("m1", "c1", "u1", "hello")}},
	}
	ix := indexer.New(s, ft, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := ix.BackfillAll(ctx, 100, 7)
	if stats.New != 0 {
		t.Errorf("New after cancellation: got %d, want 0", stats.New)
	}
}

func TestIndexEvent_TruncatesPreview(t *testing.T) {
	s := newTestStore(t)
	ix := indexer.New(s, &fakeTransport{}, nil)
	ctx := context.Background()

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	evt := rawEvent("m1", "c1", "u1", string(long))

	if _, err := ix.IndexEvent(ctx, evt); err != nil {
		t.Fatalf("IndexEvent: %v", err)
	}

	got, err := s.SearchEvents(ctx, "aaa", 1)
	if err != nil {
		t.Fatalf("SearchEvents: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("matches: got %d, want 1", len(got))
	}
	if len(got[0].ContentPreview) != 200 {
		t.Errorf("preview length: got %d, want 200", len(got[0].ContentPreview))
	}
}

func TestIndexEvent_PreviewNeverSplitsRunes(t *testing.T) {
	s := newTestStore(t)
	ix := indexer.New(s, &fakeTransport{}, nil)
	ctx := context.Background()

	evt := rawEvent("m1", "c1", "u1", strings.Repeat("ß", 300))
	if _, err := ix.IndexEvent(ctx, evt); err != nil {
		t.Fatalf("IndexEvent: %v", err)
	}

	got, err := s.SearchEvents(ctx, "ß", 1)
	if err != nil {
		t.Fatalf("SearchEvents: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("matches: got %d, want 1", len(got))
	}
	preview := got[0].ContentPreview
	if !utf8.ValidString(preview) {
		t.Fatal("preview is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(preview); n != 200 {
		t.Errorf("preview runes: got %d, want 200", n)
	}
}

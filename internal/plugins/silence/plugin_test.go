package silence

import (
	"context"
	"testing"
	"time"

	"diplomat/internal/chat"
	"diplomat/internal/plugin"
)

const bot = chat.BotAuthorID

func transcriptEndingAt(human time.Time) chat.Transcript {
	return chat.Transcript{
		{Author: chat.Author{ID: "U1", Name: "Kevin"}, Timestamp: human.Add(-time.Minute), Text: "earlier"},
		{Author: chat.Author{ID: "U2", Name: "Tom"}, Timestamp: human, Text: "last human words"},
		{Author: chat.Author{ID: bot, Name: "Chatbot"}, Timestamp: human.Add(30 * time.Second), Text: "bot talk"},
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(plugin.Config{}); err == nil {
		t.Fatalf("missing silence_minutes must error")
	}
	if _, err := New(plugin.Config{"silence_minutes": 0}); err == nil {
		t.Fatalf("zero threshold must error")
	}
	if _, err := New(plugin.Config{"silence_minutes": 5, "max_sent_times": 0}); err == nil {
		t.Fatalf("zero max_sent_times must error")
	}
}

func TestQuietChannelPrompted(t *testing.T) {
	current := time.Unix(10000, 0)
	p, err := New(plugin.Config{"silence_minutes": 5}, WithClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	transcript := transcriptEndingAt(current.Add(-10 * time.Minute))
	out, err := p.Generate(context.Background(), transcript, bot, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("want one prompt, got %d", len(out))
	}
	// Bot chatter after the last human message must not reset the clock.
}

func TestActiveChannelSilent(t *testing.T) {
	current := time.Unix(10000, 0)
	p, _ := New(plugin.Config{"silence_minutes": 5}, WithClock(func() time.Time { return current }))
	transcript := transcriptEndingAt(current.Add(-2 * time.Minute))
	if out, _ := p.Generate(context.Background(), transcript, bot, nil); len(out) != 0 {
		t.Fatalf("recent human activity must not prompt: %+v", out)
	}
}

func TestMaxSentTimesCap(t *testing.T) {
	current := time.Unix(10000, 0)
	p, _ := New(plugin.Config{"silence_minutes": 5, "max_sent_times": 2}, WithClock(func() time.Time { return current }))
	transcript := transcriptEndingAt(current.Add(-30 * time.Minute))
	sent := 0
	for i := 0; i < 5; i++ {
		out, _ := p.Generate(context.Background(), transcript, bot, nil)
		sent += len(out)
	}
	if sent != 2 {
		t.Fatalf("prompt cap: got %d, want 2", sent)
	}
}

func TestEmptyTranscriptSilent(t *testing.T) {
	p, _ := New(plugin.Config{"silence_minutes": 5})
	if out, _ := p.Generate(context.Background(), nil, bot, nil); len(out) != 0 {
		t.Fatalf("empty transcript must not prompt: %+v", out)
	}
}

package mention

import (
	"context"
	"strings"
	"testing"
	"time"

	"diplomat/internal/chat"
	"diplomat/internal/plugin"
)

const bot = chat.BotAuthorID

func baseConfig() plugin.Config {
	return plugin.Config{
		"terms": map[string]any{
			"budget":   "Remember to cover the budget",
			"deadline": "Someone should raise the deadline",
		},
		"notify_times":    1,
		"warning_formats": []any{"Topics still open: %s"},
	}
}

func human(text string, ts int) chat.Message {
	return chat.Message{
		Author:    chat.Author{ID: "U1", Name: "Kevin"},
		Timestamp: time.Unix(int64(ts), 0),
		Text:      text,
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := baseConfig()
	delete(cfg, "terms")
	if _, err := New(cfg); err == nil {
		t.Fatalf("missing terms must error")
	}
	cfg = baseConfig()
	cfg["notify_times"] = 0
	if _, err := New(cfg); err == nil {
		t.Fatalf("notify_times < 1 must error")
	}
}

func TestInactiveWithoutCommand(t *testing.T) {
	p, err := New(baseConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := p.Generate(context.Background(), chat.Transcript{human("hello", 1)}, bot, nil)
	if err != nil || out != nil {
		t.Fatalf("inactive plugin must be silent: %v, %v", out, err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	current := time.Unix(0, 0)
	p, err := New(baseConfig(), WithClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Activate a 10 minute session: one alert mark at minute 5.
	transcript := chat.Transcript{human("/activate mention_plugin time=10", 0)}
	out, _ := p.Generate(context.Background(), transcript, bot, nil)
	if len(out) != 1 || !strings.Contains(out[0].Message.Text, "activated for 10 minutes") {
		t.Fatalf("activation: %+v", out)
	}

	// Someone mentions the budget early on.
	transcript = append(transcript, human("we need to talk budget today", 60))
	current = time.Unix(120, 0)
	if out, _ := p.Generate(context.Background(), transcript, bot, nil); len(out) != 0 {
		t.Fatalf("off-mark poll must be silent: %+v", out)
	}

	// At the five-minute mark only the deadline is missing: budget was
	// mentioned within the last half-session.
	current = time.Unix(300, 0)
	out, _ = p.Generate(context.Background(), transcript, bot, nil)
	if len(out) != 1 {
		t.Fatalf("mark poll should alert: %+v", out)
	}
	text := out[0].Message.Text
	if !strings.Contains(text, "deadline") || strings.Contains(text, "budget") {
		t.Fatalf("only unmentioned terms belong in the alert: %q", text)
	}

	// A second poll in the same minute is suppressed.
	current = time.Unix(330, 0)
	if out, _ := p.Generate(context.Background(), transcript, bot, nil); len(out) != 0 {
		t.Fatalf("repeat alert within the mark minute must be suppressed: %+v", out)
	}

	// Past the session end: deactivation message, then silence.
	current = time.Unix(700, 0)
	out, _ = p.Generate(context.Background(), transcript, bot, nil)
	if len(out) != 1 || !strings.Contains(out[0].Message.Text, "deactivated") {
		t.Fatalf("deactivation: %+v", out)
	}
	if out, _ := p.Generate(context.Background(), transcript, bot, nil); len(out) != 0 {
		t.Fatalf("after deactivation the plugin must be idle: %+v", out)
	}
}

func TestBotMessagesDoNotCountAsMentions(t *testing.T) {
	current := time.Unix(0, 0)
	p, err := New(baseConfig(), WithClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	transcript := chat.Transcript{human("/activate mention_plugin time=10", 0)}
	p.Generate(context.Background(), transcript, bot, nil)

	transcript = append(transcript, chat.Message{
		Author:    chat.Author{ID: bot, Name: "Chatbot"},
		Timestamp: time.Unix(60, 0),
		Text:      "budget deadline budget",
	})
	current = time.Unix(300, 0)
	out, _ := p.Generate(context.Background(), transcript, bot, nil)
	if len(out) != 1 {
		t.Fatalf("alert expected: %+v", out)
	}
	text := out[0].Message.Text
	if !strings.Contains(text, "budget") || !strings.Contains(text, "deadline") {
		t.Fatalf("bot chatter must not satisfy mentions: %q", text)
	}
}

func TestPunctuationStrippedFromMentions(t *testing.T) {
	current := time.Unix(0, 0)
	p, err := New(baseConfig(), WithClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	transcript := chat.Transcript{human("/activate mention_plugin time=10", 0)}
	p.Generate(context.Background(), transcript, bot, nil)

	transcript = append(transcript,
		human("what about the Budget?", 60),
		human("and the (deadline)!", 70),
	)
	current = time.Unix(300, 0)
	out, _ := p.Generate(context.Background(), transcript, bot, nil)
	if len(out) != 0 {
		t.Fatalf("both terms were mentioned, expected silence: %+v", out)
	}
}

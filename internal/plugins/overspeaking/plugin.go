// Package overspeaking warns the channel when one participant dominates
// the recent conversation.
package overspeaking

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"diplomat/internal/balance"
	"diplomat/internal/chat"
	"diplomat/internal/plugin"
)

const (
	pluginID      = "overspeaking"
	pluginVersion = "1.0.0"

	defaultAckPhrase = "Thank you"
)

// Option customizes the plugin.
type Option func(*Plugin)

// WithClock overrides the timestamp source (used in tests).
func WithClock(clock func() time.Time) Option {
	return func(p *Plugin) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithPicker overrides the warning template selector (used in tests).
func WithPicker(pick func(n int) int) Option {
	return func(p *Plugin) {
		if pick != nil {
			p.pick = pick
		}
	}
}

// Plugin reports overspeaking authors using the sliding-window balance
// counter. A cooldown suppresses repeated warnings for the same ongoing
// violation; the choice of warning phrasing is not semantically
// significant.
type Plugin struct {
	window    int
	threshold int
	formats   []string
	ackPhrase string
	cooldown  time.Duration

	lastNotified time.Time
	now          func() time.Time
	pick         func(n int) int
}

// Register installs the plugin factory.
func Register(reg *plugin.Registry) {
	if reg == nil {
		return
	}
	reg.MustRegister(pluginID, func(cfg plugin.Config) (plugin.Plugin, error) {
		return New(cfg)
	})
}

// New validates the configuration and constructs the plugin.
func New(cfg plugin.Config, opts ...Option) (*Plugin, error) {
	window, err := cfg.Int(pluginID, "message_window")
	if err != nil {
		return nil, err
	}
	threshold, err := cfg.Int(pluginID, "message_count_threshold")
	if err != nil {
		return nil, err
	}
	if window < 1 || threshold < 1 || window < threshold {
		return nil, &plugin.ConfigError{
			Plugin: pluginID,
			Field:  "message_count_threshold",
			Reason: fmt.Sprintf("must satisfy 1 <= threshold (%d) <= window (%d)", threshold, window),
		}
	}
	formats, err := cfg.Strings(pluginID, "warning_formats")
	if err != nil {
		return nil, err
	}
	ackPhrase, err := cfg.StringOr(pluginID, "ack_phrase", defaultAckPhrase)
	if err != nil {
		return nil, err
	}
	cooldown, err := cfg.Duration(pluginID, "cooldown", 0)
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		window:    window,
		threshold: threshold,
		formats:   formats,
		ackPhrase: ackPhrase,
		cooldown:  cooldown,
		now:       time.Now,
		pick:      rand.Intn,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Info implements plugin.Plugin.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		ID:          pluginID,
		Name:        "Overspeaking Monitor",
		Description: "Warns when one participant dominates the recent message window.",
		Version:     pluginVersion,
	}
}

// Generate implements plugin.Plugin.
func (p *Plugin) Generate(_ context.Context, transcript chat.Transcript, botID chat.AuthorID, _ []chat.AuthorID) ([]chat.Intervention, error) {
	authors := balance.OverspeakingAuthors(transcript, botID, p.window, p.threshold, p.isAck)
	if len(authors) == 0 {
		return nil, nil
	}

	now := p.now()
	if p.cooldown > 0 && !p.lastNotified.IsZero() && now.Sub(p.lastNotified) < p.cooldown {
		return nil, nil
	}
	p.lastNotified = now

	interventions := make([]chat.Intervention, 0, len(authors))
	for _, author := range authors {
		format := p.formats[p.pick(len(p.formats))]
		interventions = append(interventions, chat.Broadcast(botID, "Chatbot", fmt.Sprintf(format, author.Name)))
	}
	return interventions, nil
}

func (p *Plugin) isAck(m chat.Message) bool {
	return strings.Contains(m.Text, p.ackPhrase)
}

// Package silence posts a discussion-block prompt when the channel has
// gone quiet for too long.
package silence

import (
	"context"
	"time"

	"diplomat/internal/chat"
	"diplomat/internal/plugin"
)

const (
	pluginID      = "silence"
	pluginVersion = "1.0.0"

	senderName = "DiscussionBlock"

	defaultPrompt = "Looks like you've reached a discussion block. Here are a few suggestions to proceed!"
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

// Plugin fires when the last human message is older than the silence
// threshold, at most maxSent times per process lifetime.
type Plugin struct {
	threshold time.Duration
	maxSent   int
	prompt    string

	sent int
	now  func() time.Time
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
	minutes, err := cfg.Int(pluginID, "silence_minutes")
	if err != nil {
		return nil, err
	}
	if minutes < 1 {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "silence_minutes", Reason: "must be >= 1"}
	}
	maxSent, err := cfg.IntOr(pluginID, "max_sent_times", 1)
	if err != nil {
		return nil, err
	}
	if maxSent < 1 {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "max_sent_times", Reason: "must be >= 1"}
	}
	prompt, err := cfg.StringOr(pluginID, "prompt", defaultPrompt)
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		threshold: time.Duration(minutes) * time.Minute,
		maxSent:   maxSent,
		prompt:    prompt,
		now:       time.Now,
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
		Name:        "Discussion Block",
		Description: "Prompts the channel after a configured stretch of silence.",
		Version:     pluginVersion,
	}
}

// Generate implements plugin.Plugin.
func (p *Plugin) Generate(_ context.Context, transcript chat.Transcript, botID chat.AuthorID, _ []chat.AuthorID) ([]chat.Intervention, error) {
	if p.sent >= p.maxSent {
		return nil, nil
	}

	var lastHuman time.Time
	for i := len(transcript) - 1; i >= 0; i-- {
		if !transcript[i].FromBot(botID) {
			lastHuman = transcript[i].Timestamp
			break
		}
	}
	if lastHuman.IsZero() {
		return nil, nil
	}
	if p.now().Sub(lastHuman) <= p.threshold {
		return nil, nil
	}

	p.sent++
	return []chat.Intervention{chat.Broadcast(botID, senderName, p.prompt)}, nil
}

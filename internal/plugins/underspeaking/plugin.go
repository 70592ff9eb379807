// Package underspeaking nudges channel members who have fallen silent
// relative to the rest of the recent conversation.
package underspeaking

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
	pluginID      = "underspeaking"
	pluginVersion = "1.0.0"

	defaultDivisor = 2.0
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

// Plugin reports members speaking below a fair share of the recent
// window. Alerts are rate-limited per member: a member is re-alerted
// only once their previous alert predates the oldest message of the
// current window, i.e. the window has fully turned over since.
type Plugin struct {
	window     int
	timeFilter time.Duration
	divisor    float64
	formats    []string

	lastAlerted map[chat.AuthorID]time.Time
	now         func() time.Time
	pick        func(n int) int
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
	if window < 1 {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "message_window", Reason: "must be >= 1"}
	}
	formats, err := cfg.Strings(pluginID, "warning_formats")
	if err != nil {
		return nil, err
	}
	divisor, err := cfg.FloatOr(pluginID, "divisor", defaultDivisor)
	if err != nil {
		return nil, err
	}
	if divisor <= 0 {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "divisor", Reason: "must be > 0"}
	}
	filterMinutes, err := cfg.IntOr(pluginID, "time_filter_minutes", 0)
	if err != nil {
		return nil, err
	}
	if filterMinutes < 0 {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "time_filter_minutes", Reason: "must be >= 0"}
	}

	p := &Plugin{
		window:      window,
		timeFilter:  time.Duration(filterMinutes) * time.Minute,
		divisor:     divisor,
		formats:     formats,
		lastAlerted: map[chat.AuthorID]time.Time{},
		now:         time.Now,
		pick:        rand.Intn,
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
		Name:        "Underspeaking Monitor",
		Description: "Encourages members speaking below a fair share of the recent window.",
		Version:     pluginVersion,
	}
}

// Generate implements plugin.Plugin.
func (p *Plugin) Generate(_ context.Context, transcript chat.Transcript, botID chat.AuthorID, members []chat.AuthorID) ([]chat.Intervention, error) {
	report, ok := balance.Underspeakers(transcript, members, p.now(), p.window, p.timeFilter, p.divisor)
	if !ok {
		return nil, nil
	}

	// Per-member cooldown: skip anyone already alerted for a window that
	// overlaps this one.
	due := report.Members[:0]
	for _, member := range report.Members {
		if last, alerted := p.lastAlerted[member]; alerted && !last.Before(report.OldestConsidered) {
			continue
		}
		due = append(due, member)
	}
	if len(due) == 0 {
		return nil, nil
	}

	now := p.now()
	mentions := make([]string, 0, len(due))
	for _, member := range due {
		p.lastAlerted[member] = now
		mentions = append(mentions, fmt.Sprintf("<@%s>", member))
	}

	format := p.formats[p.pick(len(p.formats))]
	text := fmt.Sprintf(format, strings.Join(mentions, ", "))
	return []chat.Intervention{chat.Broadcast(botID, "Chatbot", text)}, nil
}

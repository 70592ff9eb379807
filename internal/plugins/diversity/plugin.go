// Package diversity suggests inclusive replacements for configured
// terms, privately to the author who used them.
package diversity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"diplomat/internal/chat"
	"diplomat/internal/plugin"
)

const (
	pluginID      = "diversity"
	pluginVersion = "1.0.0"

	senderName = "DiversityBot"
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

// Plugin scans recent messages for configured words and sends the
// author a correction with suggested substitutes. Corrections are
// ephemeral by default so the nudge stays between the bot and the
// author.
type Plugin struct {
	substitutes map[string]string // lowercased word -> substitutes text
	lookback    time.Duration
	format      string
	ephemeral   bool

	// notified remembers per author-and-word corrections so the same
	// usage is not corrected again on every poll while the message
	// remains in the lookback range.
	notified map[string]time.Time

	now func() time.Time
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

// New validates the configuration and constructs the plugin. The word
// list is configured as groups, each with the words to catch and the
// suggested substitutes:
//
//	word_groups:
//	  - words: ["guys", "folks?"]
//	    substitutes: "people, team"
func New(cfg plugin.Config, opts ...Option) (*Plugin, error) {
	rawGroups, ok := cfg["word_groups"]
	if !ok {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "word_groups", Reason: "is required"}
	}
	groups, ok := rawGroups.([]any)
	if !ok || len(groups) == 0 {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "word_groups", Reason: "must be a non-empty list"}
	}
	substitutes := map[string]string{}
	for i, rawGroup := range groups {
		entry, ok := rawGroup.(map[string]any)
		if !ok {
			return nil, &plugin.ConfigError{
				Plugin: pluginID,
				Field:  fmt.Sprintf("word_groups[%d]", i),
				Reason: fmt.Sprintf("must be a mapping, got %T", rawGroup),
			}
		}
		sub := plugin.Config(entry)
		words, err := sub.Strings(pluginID, "words")
		if err != nil {
			return nil, err
		}
		replacement, err := sub.String(pluginID, "substitutes")
		if err != nil {
			return nil, err
		}
		for _, word := range words {
			substitutes[strings.ToLower(word)] = replacement
		}
	}

	lookbackSeconds, err := cfg.IntOr(pluginID, "lookback_seconds", 60)
	if err != nil {
		return nil, err
	}
	if lookbackSeconds < 1 {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "lookback_seconds", Reason: "must be >= 1"}
	}
	format, err := cfg.StringOr(pluginID, "warning_format", "Please consider using more inclusive terms like %s instead of %s")
	if err != nil {
		return nil, err
	}
	ephemeral, err := cfg.Bool(pluginID, "ephemeral", true)
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		substitutes: substitutes,
		lookback:    time.Duration(lookbackSeconds) * time.Second,
		format:      format,
		ephemeral:   ephemeral,
		notified:    map[string]time.Time{},
		now:         time.Now,
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
		Name:        "Inclusive Language",
		Description: "Suggests inclusive substitutes for configured terms.",
		Version:     pluginVersion,
	}
}

// Generate implements plugin.Plugin.
func (p *Plugin) Generate(_ context.Context, transcript chat.Transcript, botID chat.AuthorID, _ []chat.AuthorID) ([]chat.Intervention, error) {
	now := p.now()
	cutoff := now.Add(-p.lookback)

	var out []chat.Intervention
	for _, m := range transcript.Since(cutoff) {
		if m.FromBot(botID) {
			continue
		}
		for _, token := range strings.Fields(m.Text) {
			word := strings.ToLower(strings.Trim(token, ".,!?;:\"'()"))
			replacement, flagged := p.substitutes[word]
			if !flagged {
				continue
			}
			key := string(m.Author.ID) + "|" + word
			if seen, done := p.notified[key]; done && !m.Timestamp.After(seen) {
				continue
			}
			p.notified[key] = m.Timestamp
			text := fmt.Sprintf(p.format, replacement, word)
			if p.ephemeral {
				out = append(out, chat.EphemeralTo(m.Author.ID, botID, senderName, text))
			} else {
				out = append(out, chat.Broadcast(botID, senderName, text))
			}
		}
	}
	return out, nil
}

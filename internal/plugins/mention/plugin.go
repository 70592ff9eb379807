// Package mention tracks whether configured keywords keep appearing in
// the conversation during a timed session and alerts when terms go
// unmentioned for too long.
package mention

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"diplomat/internal/chat"
	"diplomat/internal/plugin"
)

const (
	pluginID      = "mention"
	pluginVersion = "1.0.0"

	senderName = "MentionPlugin"
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

// Plugin activates on "/activate mention_plugin time=N" and, at evenly
// spaced marks through the session, lists the terms that have been
// absent from the conversation for more than half the session.
type Plugin struct {
	terms        map[string]string // lowercased term -> explanation
	notifyTimes  int
	formats      []string

	active        bool
	totalMinutes  int
	startedAt     time.Time
	lastProcessed time.Time
	lastMention   map[string]time.Time
	lastNotified  time.Time

	now  func() time.Time
	pick func(n int) int
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
	section, err := cfg.Section(pluginID, "terms")
	if err != nil {
		return nil, err
	}
	if len(section) == 0 {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "terms", Reason: "is required"}
	}
	terms := make(map[string]string, len(section))
	for term, raw := range section {
		explanation, ok := raw.(string)
		if !ok || explanation == "" {
			return nil, &plugin.ConfigError{
				Plugin: pluginID,
				Field:  fmt.Sprintf("terms.%s", term),
				Reason: "must map to a non-empty explanation string",
			}
		}
		terms[strings.ToLower(term)] = explanation
	}
	notifyTimes, err := cfg.Int(pluginID, "notify_times")
	if err != nil {
		return nil, err
	}
	if notifyTimes < 1 {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "notify_times", Reason: "must be >= 1"}
	}
	formats, err := cfg.Strings(pluginID, "warning_formats")
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		terms:       terms,
		notifyTimes: notifyTimes,
		formats:     formats,
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
		Name:        "Mention Tracker",
		Description: "Tracks configured keywords during a timed session and alerts when they go unmentioned.",
		Version:     pluginVersion,
	}
}

// Generate implements plugin.Plugin.
func (p *Plugin) Generate(_ context.Context, transcript chat.Transcript, botID chat.AuthorID, _ []chat.AuthorID) ([]chat.Intervention, error) {
	activating := chat.HasCommand(transcript, chat.CmdActivateMention)
	if !activating && !p.active {
		return nil, nil
	}

	if activating {
		last, _ := transcript.Latest()
		minutes, err := chat.Digits(last.Text)
		if err != nil || minutes < 1 {
			return []chat.Intervention{p.say(botID, "MentionPlugin: I couldn't read the duration. Try /activate mention_plugin time=30")}, nil
		}
		p.activate(minutes, last.Timestamp)
		return []chat.Intervention{p.say(botID, fmt.Sprintf("MentionPlugin: Plugin activated for %d minutes", minutes))}, nil
	}

	now := p.now()
	if now.Sub(p.startedAt).Minutes() > float64(p.totalMinutes) {
		p.deactivate()
		return []chat.Intervention{p.say(botID, "MentionPlugin: Plugin deactivated.")}, nil
	}

	p.scanNewMessages(transcript, botID)

	elapsed := int(now.Sub(p.startedAt).Minutes())
	if elapsed < 1 {
		return nil, nil
	}
	interval := p.totalMinutes / (p.notifyTimes + 1)
	if interval < 1 || elapsed%interval != 0 {
		return nil, nil
	}
	// One alert per interval mark: suppress repeats within the minute.
	if !p.lastNotified.IsZero() && now.Sub(p.lastNotified) < time.Minute {
		return nil, nil
	}

	missing := p.missingTerms(now)
	if len(missing) == 0 {
		return nil, nil
	}
	p.lastNotified = now
	format := p.formats[p.pick(len(p.formats))]
	return []chat.Intervention{p.say(botID, fmt.Sprintf(format, strings.Join(missing, ", ")))}, nil
}

func (p *Plugin) activate(minutes int, commandTS time.Time) {
	p.active = true
	p.totalMinutes = minutes
	p.startedAt = p.now()
	p.lastProcessed = commandTS
	p.lastMention = map[string]time.Time{}
	p.lastNotified = time.Time{}
}

func (p *Plugin) deactivate() {
	p.active = false
	p.totalMinutes = 0
	p.startedAt = time.Time{}
	p.lastProcessed = time.Time{}
	p.lastMention = nil
	p.lastNotified = time.Time{}
}

// scanNewMessages walks the transcript suffix newer than the last
// processed timestamp and records the freshest mention per term.
func (p *Plugin) scanNewMessages(transcript chat.Transcript, botID chat.AuthorID) {
	var newest time.Time
	for i := len(transcript) - 1; i >= 0; i-- {
		m := transcript[i]
		if !m.Timestamp.After(p.lastProcessed) {
			break
		}
		if m.FromBot(botID) {
			continue
		}
		if newest.IsZero() {
			newest = m.Timestamp
		}
		for _, word := range strings.Fields(m.Text) {
			word = strings.ToLower(strings.Trim(word, ".,!?;:\"'()"))
			if _, tracked := p.terms[word]; !tracked {
				continue
			}
			if m.Timestamp.After(p.lastMention[word]) {
				p.lastMention[word] = m.Timestamp
			}
		}
	}
	if !newest.IsZero() {
		p.lastProcessed = newest
	}
}

// missingTerms lists the explanations for terms never mentioned, or not
// mentioned for more than half the session, in stable order.
func (p *Plugin) missingTerms(now time.Time) []string {
	half := time.Duration(p.totalMinutes) * time.Minute / 2
	terms := make([]string, 0, len(p.terms))
	for term := range p.terms {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	var missing []string
	for _, term := range terms {
		mentioned, ever := p.lastMention[term]
		if !ever || now.Sub(mentioned) > half {
			missing = append(missing, p.terms[term])
		}
	}
	return missing
}

func (p *Plugin) say(botID chat.AuthorID, text string) chat.Intervention {
	return chat.Broadcast(botID, senderName, text)
}

// Package timer runs the discussion countdown: a start command arms a
// timer and a configured list of notification rules is evaluated against
// elapsed and remaining minutes on every poll.
package timer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"diplomat/internal/chat"
	"diplomat/internal/plugin"
)

const (
	pluginID      = "timer"
	pluginVersion = "1.1.0"

	senderName = "TimerPlugin"
)

// Rule parameters and the operator set evaluated against the operand.
// Arithmetic operators fire when the result is zero; comparisons fire
// when they hold.
const (
	ParamElapsed        = "elapsed"
	ParamTimeLeft       = "time_left"
	ParamSinceLastHuman = "time_since_last_human_message"
)

var validOps = map[string]bool{
	"-": true, "+": true, "*": true, "%": true, "/": true, ">": true, "<": true,
}

// Rule is one configured notification expression.
type Rule struct {
	Parameter string `yaml:"parameter"`
	Op        string `yaml:"op"`
	Value     int    `yaml:"value"`
	Message   string `yaml:"message"`
	MaxTimes  int    `yaml:"max_times"`
}

func (r Rule) validate(index int) error {
	switch r.Parameter {
	case ParamElapsed, ParamTimeLeft, ParamSinceLastHuman:
	default:
		return &plugin.ConfigError{
			Plugin: pluginID,
			Field:  fmt.Sprintf("notifications[%d].parameter", index),
			Reason: fmt.Sprintf("must be one of elapsed, time_left, time_since_last_human_message; got %q", r.Parameter),
		}
	}
	if !validOps[r.Op] {
		return &plugin.ConfigError{
			Plugin: pluginID,
			Field:  fmt.Sprintf("notifications[%d].op", index),
			Reason: fmt.Sprintf("must be one of - + * %% / > <; got %q", r.Op),
		}
	}
	if r.Message == "" {
		return &plugin.ConfigError{
			Plugin: pluginID,
			Field:  fmt.Sprintf("notifications[%d].message", index),
			Reason: "is required",
		}
	}
	return nil
}

// fires evaluates the rule against the parameter value. Division and
// modulo by zero never fire.
func (r Rule) fires(value int) bool {
	switch r.Op {
	case "-":
		return value-r.Value == 0
	case "+":
		return value+r.Value == 0
	case "*":
		return value*r.Value == 0
	case "%":
		return r.Value != 0 && value%r.Value == 0
	case "/":
		return r.Value != 0 && value/r.Value == 0
	case ">":
		return value > r.Value
	case "<":
		return value < r.Value
	}
	return false
}

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

// Plugin arms on "/start discussion time=N" and evaluates the rule list
// each poll until the total duration elapses.
type Plugin struct {
	rules []Rule

	armed        bool
	totalMinutes int
	startedAt    time.Time
	fireCounts   []int
	lastNotified time.Time

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

// New validates the configuration and constructs the plugin.
func New(cfg plugin.Config, opts ...Option) (*Plugin, error) {
	rules, err := parseRules(cfg)
	if err != nil {
		return nil, err
	}
	p := &Plugin{
		rules: rules,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func parseRules(cfg plugin.Config) ([]Rule, error) {
	raw, ok := cfg["notifications"]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "notifications", Reason: fmt.Sprintf("must be a list, got %T", raw)}
	}
	rules := make([]Rule, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, &plugin.ConfigError{
				Plugin: pluginID,
				Field:  fmt.Sprintf("notifications[%d]", i),
				Reason: fmt.Sprintf("must be a mapping, got %T", item),
			}
		}
		sub := plugin.Config(entry)
		param, err := sub.String(pluginID, "parameter")
		if err != nil {
			return nil, err
		}
		op, err := sub.String(pluginID, "op")
		if err != nil {
			return nil, err
		}
		value, err := sub.Int(pluginID, "value")
		if err != nil {
			return nil, err
		}
		message, err := sub.String(pluginID, "message")
		if err != nil {
			return nil, err
		}
		maxTimes, err := sub.IntOr(pluginID, "max_times", 0)
		if err != nil {
			return nil, err
		}
		rule := Rule{Parameter: param, Op: op, Value: value, Message: message, MaxTimes: maxTimes}
		if err := rule.validate(i); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Info implements plugin.Plugin.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		ID:          pluginID,
		Name:        "Discussion Timer",
		Description: "Arms a discussion countdown and fires configured notification rules.",
		Version:     pluginVersion,
	}
}

// Generate implements plugin.Plugin.
func (p *Plugin) Generate(_ context.Context, transcript chat.Transcript, botID chat.AuthorID, _ []chat.AuthorID) ([]chat.Intervention, error) {
	starting := chat.HasCommand(transcript, chat.CmdStartDiscussion)
	if !starting && !p.armed {
		return nil, nil
	}

	if starting {
		last, _ := transcript.Latest()
		minutes, err := chat.Digits(last.Text)
		if err != nil {
			return []chat.Intervention{p.say(botID, "TimerPlugin: I couldn't read the duration. Try /start discussion time=30")}, nil
		}
		if minutes < 1 {
			return []chat.Intervention{p.say(botID, "TimerPlugin: The duration must be at least one minute.")}, nil
		}
		p.arm(minutes)
		return []chat.Intervention{p.say(botID, fmt.Sprintf("TimerPlugin: Discussion Timer set for %d minutes", minutes))}, nil
	}

	now := p.now()
	elapsed := int(now.Sub(p.startedAt).Minutes())
	if elapsed > p.totalMinutes {
		total := p.totalMinutes
		p.reset()
		return []chat.Intervention{p.say(botID, fmt.Sprintf("TimerPlugin: Your %d minute discussion timer has ended.", total))}, nil
	}

	// At most one notification per minute: a rule whose condition keeps
	// holding across polls fires once, not on every poll of that minute.
	// Arming stamps lastNotified, which also keeps interval rules from
	// firing on the very next poll.
	if now.Sub(p.lastNotified) < time.Minute {
		return nil, nil
	}

	timeLeft := p.totalMinutes - elapsed
	sinceHuman := p.minutesSinceLastHuman(transcript, botID, now)

	for i, rule := range p.rules {
		if rule.MaxTimes > 0 && p.fireCounts[i] >= rule.MaxTimes {
			continue
		}
		value := timeLeft
		switch rule.Parameter {
		case ParamElapsed:
			value = elapsed
		case ParamSinceLastHuman:
			value = sinceHuman
		}
		if !rule.fires(value) {
			continue
		}
		p.fireCounts[i]++
		p.lastNotified = now
		text := strings.ReplaceAll(rule.Message, "{time_left}", fmt.Sprintf("%d", timeLeft))
		text = strings.ReplaceAll(text, "{elapsed}", fmt.Sprintf("%d", elapsed))
		return []chat.Intervention{p.say(botID, text)}, nil
	}
	return nil, nil
}

func (p *Plugin) arm(minutes int) {
	now := p.now()
	p.armed = true
	p.totalMinutes = minutes
	p.startedAt = now
	p.lastNotified = now
	p.fireCounts = make([]int, len(p.rules))
}

func (p *Plugin) reset() {
	p.armed = false
	p.totalMinutes = 0
	p.startedAt = time.Time{}
	p.lastNotified = time.Time{}
	p.fireCounts = nil
}

func (p *Plugin) minutesSinceLastHuman(transcript chat.Transcript, botID chat.AuthorID, now time.Time) int {
	for i := len(transcript) - 1; i >= 0; i-- {
		if !transcript[i].FromBot(botID) {
			return int(now.Sub(transcript[i].Timestamp).Minutes())
		}
	}
	return 0
}

func (p *Plugin) say(botID chat.AuthorID, text string) chat.Intervention {
	return chat.Broadcast(botID, senderName, text)
}

// Package wizard collects a plugin configuration conversationally: the
// operator starts it in the channel and answers one question per field,
// then receives a ready-to-paste YAML snippet.
package wizard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"diplomat/internal/chat"
	"diplomat/internal/plugin"
)

const (
	pluginID      = "wizard"
	pluginVersion = "1.0.0"

	senderName = "ConfigWizard"
)

type field struct {
	key    string
	prompt string
}

// templates lists the configurable plugins and their fields in asking
// order.
var templates = map[string][]field{
	"overspeaking": {
		{"message_window", "How many recent messages should one balance window cover?"},
		{"message_count_threshold", "After how many messages inside the window is someone overspeaking?"},
		{"warning_formats", "Give the warning formats as a list, e.g. [\"%s is overspeaking!\"]"},
	},
	"diversity": {
		{"lookback_seconds", "How many seconds back should each poll check?"},
		{"ephemeral", "Correct privately? (true/false)"},
		{"word_groups", "Give the word groups, e.g. [{words: [guys], substitutes: \"people, folks\"}]"},
	},
}

// Plugin runs the question loop. Only one collection session is active
// at a time; a new start command restarts it.
type Plugin struct {
	active   bool
	chosen   string
	index    int
	answers  map[string]any
	lastSeen time.Time
}

// Register installs the plugin factory.
func Register(reg *plugin.Registry) {
	if reg == nil {
		return
	}
	reg.MustRegister(pluginID, func(plugin.Config) (plugin.Plugin, error) {
		return New(), nil
	})
}

// New constructs the wizard. It takes no configuration of its own.
func New() *Plugin {
	return &Plugin{answers: map[string]any{}}
}

// Info implements plugin.Plugin.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		ID:          pluginID,
		Name:        "Config Wizard",
		Description: "Builds a plugin configuration from channel answers.",
		Version:     pluginVersion,
	}
}

// Generate implements plugin.Plugin.
func (p *Plugin) Generate(_ context.Context, transcript chat.Transcript, botID chat.AuthorID, _ []chat.AuthorID) ([]chat.Intervention, error) {
	latest, ok := transcript.Latest()
	if !ok || latest.FromBot(botID) || !latest.Timestamp.After(p.lastSeen) {
		return nil, nil
	}

	if strings.HasPrefix(latest.Text, chat.CmdStartWizard) {
		p.consume(latest)
		p.active = true
		p.chosen = ""
		p.index = 0
		p.answers = map[string]any{}
		return p.say(botID, "Which plugin would you like to configure? ("+choiceList()+")"), nil
	}
	if !p.active {
		return nil, nil
	}

	if p.chosen == "" {
		p.consume(latest)
		choice := strings.ToLower(strings.TrimSpace(latest.Text))
		if _, ok := templates[choice]; !ok {
			return p.say(botID, "I do not know that plugin. Pick one of: "+choiceList()), nil
		}
		p.chosen = choice
		return p.say(botID, templates[choice][0].prompt), nil
	}

	p.consume(latest)
	fields := templates[p.chosen]
	p.answers[fields[p.index].key] = parseAnswer(latest.Text)
	p.index++
	if p.index < len(fields) {
		return p.say(botID, fields[p.index].prompt), nil
	}

	snippet, err := renderSnippet(p.chosen, p.answers)
	p.active = false
	if err != nil {
		return p.say(botID, "I could not render that configuration, sorry. Please start over."), nil
	}
	return p.say(botID, "Add this under `plugins:` in your config file:\n```\n"+snippet+"```"), nil
}

func (p *Plugin) consume(m chat.Message) {
	p.lastSeen = m.Timestamp
}

func (p *Plugin) say(botID chat.AuthorID, text string) []chat.Intervention {
	return []chat.Intervention{chat.Broadcast(botID, senderName, text)}
}

func choiceList() string {
	ids := make([]string, 0, len(templates))
	for id := range templates {
		ids = append(ids, id)
	}
	// Two entries; keep a stable order without pulling in sort.
	if len(ids) == 2 && ids[0] > ids[1] {
		ids[0], ids[1] = ids[1], ids[0]
	}
	return strings.Join(ids, " / ")
}

// parseAnswer decodes an answer as YAML so numbers, booleans and lists
// come out typed; anything that fails to parse stays a plain string.
func parseAnswer(text string) any {
	var value any
	if err := yaml.Unmarshal([]byte(text), &value); err != nil || value == nil {
		return strings.TrimSpace(text)
	}
	return value
}

func renderSnippet(pluginName string, answers map[string]any) (string, error) {
	data, err := yaml.Marshal(map[string]any{pluginName: answers})
	if err != nil {
		return "", fmt.Errorf("wizard: encode snippet: %w", err)
	}
	return string(data), nil
}

// Package summarizer answers "/summarize days=N" with the top-ranked
// keyword phrases from the recent conversation.
package summarizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"diplomat/internal/chat"
	"diplomat/internal/plugin"
)

const (
	pluginID      = "summarizer"
	pluginVersion = "1.0.0"

	senderName = "Summarizer"
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

// Plugin extracts candidate phrases by splitting messages at stopwords
// and punctuation, scores each phrase by summed word degree/frequency
// ratios, and posts the highest ranked phrases. Rapid-keyword scoring in
// this style favors longer, co-occurring word runs over isolated words.
type Plugin struct {
	summarySize int
	now         func() time.Time
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
	size, err := cfg.Int(pluginID, "summary_size")
	if err != nil {
		return nil, err
	}
	if size < 1 {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "summary_size", Reason: "must be >= 1"}
	}
	p := &Plugin{summarySize: size, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Info implements plugin.Plugin.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		ID:          pluginID,
		Name:        "Conversation Summarizer",
		Description: "Posts the top-ranked keyword phrases for a requested number of days.",
		Version:     pluginVersion,
	}
}

// Generate implements plugin.Plugin.
func (p *Plugin) Generate(_ context.Context, transcript chat.Transcript, botID chat.AuthorID, _ []chat.AuthorID) ([]chat.Intervention, error) {
	last, ok := transcript.Latest()
	if !ok || !strings.HasPrefix(last.Text, chat.CmdSummarize) {
		return nil, nil
	}
	if last.FromBot(botID) {
		return nil, nil
	}
	days, err := chat.Digits(last.Text)
	if err != nil || days < 1 {
		return []chat.Intervention{chat.Broadcast(botID, senderName, "Summarizer: I couldn't read the day count. Try /summarize days=2")}, nil
	}

	cutoff := p.now().Add(-time.Duration(days) * 24 * time.Hour)
	var texts []string
	for _, m := range transcript {
		if m.FromBot(botID) || m.Timestamp.Before(cutoff) {
			continue
		}
		if strings.HasPrefix(m.Text, "/") {
			continue
		}
		texts = append(texts, m.Text)
	}
	if len(texts) == 0 {
		return []chat.Intervention{chat.Broadcast(botID, senderName, fmt.Sprintf("Summarizer: No messages in the last %d days to summarize.", days))}, nil
	}

	phrases := RankedPhrases(texts, p.summarySize)
	out := make([]chat.Intervention, 0, len(phrases))
	for _, phrase := range phrases {
		out = append(out, chat.Broadcast(botID, senderName, phrase))
	}
	return out, nil
}

// stopwords is a compact English function-word list; phrase candidates
// never cross a stopword boundary.
var stopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(
		"a about after all also an and any are as at be because been but by can could did do does " +
			"for from had has have he her him his how i if in into is it its just like me more my no nor " +
			"not of on or our out she so some than that the their them then there these they this to too " +
			"up us was we were what when where which who will with would you your") {
		stopwords[w] = true
	}
}

// RankedPhrases extracts candidate phrases from the texts and returns
// the top n by degree/frequency score, highest first. Duplicate phrases
// collapse to one entry.
func RankedPhrases(texts []string, n int) []string {
	var candidates [][]string
	for _, text := range texts {
		candidates = append(candidates, splitPhrases(text)...)
	}
	if len(candidates) == 0 {
		return nil
	}

	frequency := map[string]int{}
	degree := map[string]int{}
	for _, phrase := range candidates {
		for _, word := range phrase {
			frequency[word]++
			degree[word] += len(phrase)
		}
	}

	type scored struct {
		phrase string
		score  float64
	}
	seen := map[string]bool{}
	var ranked []scored
	for _, phrase := range candidates {
		text := strings.Join(phrase, " ")
		if seen[text] {
			continue
		}
		seen[text] = true
		var score float64
		for _, word := range phrase {
			score += float64(degree[word]) / float64(frequency[word])
		}
		ranked = append(ranked, scored{phrase: text, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].phrase < ranked[j].phrase
	})

	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].phrase
	}
	return out
}

// splitPhrases breaks a text into stopword-free word runs.
func splitPhrases(text string) [][]string {
	var phrases [][]string
	var current []string
	flush := func() {
		if len(current) > 0 {
			phrases = append(phrases, current)
			current = nil
		}
	}
	for _, token := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(token, ".,!?;:\"'()[]")
		if word == "" || stopwords[word] {
			flush()
			continue
		}
		current = append(current, word)
	}
	flush()
	return phrases
}

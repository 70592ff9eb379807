// Package slackchat adapts a Slack channel to the engine's transcript,
// delivery and membership interfaces.
package slackchat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"diplomat/internal/chat"
)

const defaultHistoryLimit = 200

// api is the slice of the Slack client the adapter calls. *slack.Client
// satisfies it; tests substitute a fake.
type api interface {
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetUsersInConversationContext(ctx context.Context, params *slack.GetUsersInConversationParameters) ([]string, string, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
}

// Option customizes the adapter.
type Option func(*Adapter)

// WithHistoryLimit caps how many messages one transcript fetch pulls.
func WithHistoryLimit(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.historyLimit = n
		}
	}
}

// Adapter talks to one Slack channel on behalf of the engine.
type Adapter struct {
	client       api
	channel      string
	botID        chat.AuthorID
	observers    map[chat.AuthorID]bool
	historyLimit int

	mu    sync.Mutex
	names map[string]string
}

// New builds an adapter over an authenticated Slack client. Observers
// are member ids excluded from the membership listing.
func New(client api, channel string, botID chat.AuthorID, observers []string, opts ...Option) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("slackchat: client is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("slackchat: channel is required")
	}
	a := &Adapter{
		client:       client,
		channel:      channel,
		botID:        botID,
		observers:    map[chat.AuthorID]bool{},
		historyLimit: defaultHistoryLimit,
		names:        map[string]string{},
	}
	for _, o := range observers {
		a.observers[chat.AuthorID(o)] = true
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Connect authenticates a token and returns an adapter bound to the
// channel.
func Connect(token, channel string, botID chat.AuthorID, observers []string, opts ...Option) (*Adapter, error) {
	if token == "" {
		return nil, fmt.Errorf("slackchat: token is required")
	}
	return New(slack.New(token), channel, botID, observers, opts...)
}

// Transcript fetches the channel history oldest-first.
func (a *Adapter) Transcript(ctx context.Context) (chat.Transcript, error) {
	resp, err := a.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: a.channel,
		Limit:     a.historyLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("slackchat: fetch history: %w", err)
	}

	// Slack returns newest first; plugins expect chronological order.
	transcript := make(chat.Transcript, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		m := resp.Messages[i]
		msg, ok := a.convert(ctx, m)
		if !ok {
			continue
		}
		transcript = append(transcript, msg)
	}
	return transcript, nil
}

// Members lists channel members minus the bot and the observers.
func (a *Adapter) Members(ctx context.Context) ([]chat.AuthorID, error) {
	users, _, err := a.client.GetUsersInConversationContext(ctx, &slack.GetUsersInConversationParameters{
		ChannelID: a.channel,
	})
	if err != nil {
		return nil, fmt.Errorf("slackchat: list members: %w", err)
	}
	var members []chat.AuthorID
	for _, u := range users {
		id := chat.AuthorID(u)
		if id == a.botID || a.observers[id] {
			continue
		}
		members = append(members, id)
	}
	return members, nil
}

// Deliver posts one intervention, ephemerally when it names a
// recipient.
func (a *Adapter) Deliver(ctx context.Context, intervention chat.Intervention) error {
	options := messageOptions(intervention.Message)
	if intervention.Ephemeral() {
		_, err := a.client.PostEphemeralContext(ctx, a.channel, string(intervention.Recipient), options...)
		if err != nil {
			return fmt.Errorf("slackchat: post ephemeral: %w", err)
		}
		return nil
	}
	if _, _, err := a.client.PostMessageContext(ctx, a.channel, options...); err != nil {
		return fmt.Errorf("slackchat: post message: %w", err)
	}
	return nil
}

// messageOptions prefers structured blocks over plain text when the
// message carries both.
func messageOptions(m chat.Message) []slack.MsgOption {
	if len(m.Blocks) > 0 {
		blocks := make([]slack.Block, 0, len(m.Blocks))
		for _, b := range m.Blocks {
			blocks = append(blocks, slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType, b.Text, false, false), nil, nil,
			))
		}
		return []slack.MsgOption{slack.MsgOptionBlocks(blocks...)}
	}
	return []slack.MsgOption{slack.MsgOptionText(m.Text, false)}
}

func (a *Adapter) convert(ctx context.Context, m slack.Message) (chat.Message, bool) {
	// Channel events (joins, topic changes) carry no author; skip them.
	if m.User == "" && m.BotID == "" {
		return chat.Message{}, false
	}
	ts, err := parseTimestamp(m.Timestamp)
	if err != nil {
		return chat.Message{}, false
	}
	author := chat.Author{ID: chat.AuthorID(m.User)}
	if m.User == "" && m.BotID != "" {
		author = chat.Author{ID: a.botID, Name: m.Username}
	} else {
		author.Name = a.displayName(ctx, m.User)
	}
	return chat.Message{
		Author:    author,
		Timestamp: ts,
		Text:      m.Text,
	}, true
}

// displayName resolves and caches a user's display name. Lookups are
// best effort; the raw id stands in when the API call fails.
func (a *Adapter) displayName(ctx context.Context, userID string) string {
	a.mu.Lock()
	if name, ok := a.names[userID]; ok {
		a.mu.Unlock()
		return name
	}
	a.mu.Unlock()

	name := userID
	if user, err := a.client.GetUserInfoContext(ctx, userID); err == nil {
		if user.Profile.DisplayName != "" {
			name = user.Profile.DisplayName
		} else if user.RealName != "" {
			name = user.RealName
		}
	}
	a.mu.Lock()
	a.names[userID] = name
	a.mu.Unlock()
	return name
}

// parseTimestamp converts Slack's "seconds.micros" string timestamps.
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("slackchat: empty timestamp")
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("slackchat: parse timestamp %q: %w", raw, err)
	}
	sec := int64(seconds)
	nsec := int64((seconds - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec), nil
}

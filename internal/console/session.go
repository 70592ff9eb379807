// Package console hosts a local chat session in the terminal so the
// facilitation engine can be exercised without a Slack workspace. The
// session doubles as the engine's transport.
package console

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"diplomat/internal/chat"
)

// Session is an in-memory channel shared by the TUI goroutine and the
// engine's poll loop.
type Session struct {
	mu         sync.Mutex
	botID      chat.AuthorID
	botName    string
	transcript chat.Transcript
	members    []chat.AuthorID
	names      map[chat.AuthorID]string
	now        func() time.Time
}

// NewSession creates an empty local channel owned by the given bot
// identity.
func NewSession(botID chat.AuthorID, botName string) *Session {
	return &Session{
		botID:   botID,
		botName: botName,
		names:   map[chat.AuthorID]string{},
		now:     time.Now,
	}
}

// Join adds a member to the channel, keeping join order.
func (s *Session) Join(id chat.AuthorID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[id]; !ok {
		s.members = append(s.members, id)
	}
	s.names[id] = name
}

// Say appends a message from a member.
func (s *Session) Say(id chat.AuthorID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := s.names[id]
	if name == "" {
		name = string(id)
	}
	s.transcript = append(s.transcript, chat.Message{
		Author:    chat.Author{ID: id, Name: name},
		Timestamp: s.now(),
		Text:      text,
	})
}

// Transcript implements the engine's transcript source.
func (s *Session) Transcript(context.Context) (chat.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(chat.Transcript, len(s.transcript))
	copy(out, s.transcript)
	return out, nil
}

// Members implements the engine's membership lookup.
func (s *Session) Members(context.Context) ([]chat.AuthorID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.AuthorID, len(s.members))
	copy(out, s.members)
	return out, nil
}

// Deliver implements the engine's delivery sink. Ephemeral messages are
// rendered with a visibility note since a local terminal has a single
// viewer anyway.
func (s *Session) Deliver(_ context.Context, intervention chat.Intervention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := intervention.Message
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if intervention.Ephemeral() {
		msg.Text = fmt.Sprintf("(only %s sees this) %s", intervention.Recipient, msg.Text)
	}
	s.transcript = append(s.transcript, msg)
	return nil
}

// Render returns the transcript as display lines, newest last.
func (s *Session) Render() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, 0, len(s.transcript))
	for _, m := range s.transcript {
		name := m.Author.Name
		if name == "" {
			name = string(m.Author.ID)
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("15:04:05"), name, strings.TrimRight(m.Text, "\n")))
	}
	return lines
}

// Len reports the current transcript length, used by the TUI to detect
// new bot messages between frames.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcript)
}

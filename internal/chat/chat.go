// Package chat defines the value types shared by every part of the
// facilitation engine: authors, messages, transcripts, and the
// interventions the plugins emit back into the channel.
package chat

import "time"

// BotAuthorID is the reserved sentinel identity for messages authored by
// the chatbot itself. It never collides with a real participant id.
const BotAuthorID AuthorID = "-1"

// AuthorID is an opaque participant identifier assigned by the chat
// platform.
type AuthorID string

// Author identifies one participant in a channel.
type Author struct {
	ID   AuthorID
	Name string
}

// Equal reports whether two authors are the same participant. The display
// name is deliberately part of the comparison: a renamed author compares
// as a different author.
func (a Author) Equal(other Author) bool {
	return a.ID == other.ID && a.Name == other.Name
}

// Block is one unit of rich message content. When a message carries
// blocks, delivery sinks render them instead of the plain text.
type Block struct {
	Type string
	Text string
}

// Message is a single transcript entry. Messages are immutable once
// constructed; plugins receive them by value.
type Message struct {
	Author    Author
	Timestamp time.Time
	Text      string
	Blocks    []Block
}

// FromBot reports whether the message was authored by the chatbot.
func (m Message) FromBot(botID AuthorID) bool {
	return m.Author.ID == botID
}

// Transcript is the ordered message history of a channel, oldest first.
// Every poll yields a fresh snapshot; there is no persistent identity
// between polls, so continuity must be derived from timestamps alone.
type Transcript []Message

// Latest returns the most recent message, with ok=false on an empty
// transcript. Every caller must handle the empty case; there is no
// unguarded last-element accessor.
func (t Transcript) Latest() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

// Tail returns at most the n most recent messages, oldest first.
func (t Transcript) Tail(n int) Transcript {
	if n <= 0 {
		return nil
	}
	if len(t) <= n {
		return t
	}
	return t[len(t)-n:]
}

// Since returns the suffix of the transcript whose timestamps are at or
// after the cutoff, oldest first.
func (t Transcript) Since(cutoff time.Time) Transcript {
	for i, m := range t {
		if !m.Timestamp.Before(cutoff) {
			return t[i:]
		}
	}
	return nil
}

// Intervention is one outgoing chatbot message plus its delivery mode.
// An empty Recipient means a broadcast to the whole channel; otherwise
// the message is delivered ephemerally to that author alone.
type Intervention struct {
	Message   Message
	Recipient AuthorID
}

// Ephemeral reports whether the intervention targets a single author.
func (iv Intervention) Ephemeral() bool {
	return iv.Recipient != ""
}

// Broadcast wraps a bot message as a channel-wide intervention.
func Broadcast(botID AuthorID, botName, text string) Intervention {
	return Intervention{Message: BotMessage(botID, botName, text)}
}

// EphemeralTo wraps a bot message as an intervention visible only to the
// given author.
func EphemeralTo(recipient AuthorID, botID AuthorID, botName, text string) Intervention {
	return Intervention{
		Message:   BotMessage(botID, botName, text),
		Recipient: recipient,
	}
}

// BotMessage constructs a message authored by the chatbot. Outgoing
// messages carry the zero timestamp; the platform stamps them on post.
func BotMessage(botID AuthorID, botName, text string) Message {
	return Message{
		Author: Author{ID: botID, Name: botName},
		Text:   text,
	}
}

// Package balance implements the sliding-window speaking-balance
// counters shared by the over- and under-speaking plugins. Both operate
// on a transcript snapshot alone: all continuity between polls is
// reconstructed from message timestamps, never from external memory.
package balance

import (
	"time"

	"diplomat/internal/chat"
)

// AckFunc decides whether a bot-authored message acknowledges an earlier
// balance violation. An acknowledgement retroactively neutralizes the
// messages of every author currently at or above the threshold.
type AckFunc func(chat.Message) bool

// AnyBotMessage treats every bot message as an acknowledgement.
func AnyBotMessage(chat.Message) bool { return true }

// OverspeakingAuthors scans the transcript and reports every author
// whose non-bot message count within the most recent windowSize messages
// reaches countThreshold (inclusive).
//
// The counter keeps a bounded queue of the last windowSize messages and
// a per-author running count. When a bot message satisfies isAck, every
// author at or above the threshold is reset to zero and stamped with an
// accounted-for timestamp equal to the bot message's timestamp. At
// eviction time a message only decrements its author's count if its
// timestamp is not already covered by that stamp, which makes resets
// retroactive over messages still inside the window without rescanning:
// O(1) per eviction, amortized O(windowSize) per poll.
//
// Authors are reported under their last-seen identity, so a rename
// mid-window surfaces the newest name.
func OverspeakingAuthors(transcript chat.Transcript, botID chat.AuthorID, windowSize, countThreshold int, isAck AckFunc) []chat.Author {
	if windowSize < 1 || countThreshold < 1 || countThreshold > windowSize {
		return nil
	}
	if isAck == nil {
		isAck = AnyBotMessage
	}

	window := make([]chat.Message, 0, windowSize)
	counts := map[chat.AuthorID]int{}
	accountedFor := map[chat.AuthorID]time.Time{}
	lastSeen := map[chat.AuthorID]chat.Author{}
	order := []chat.AuthorID{}

	for _, msg := range transcript {
		if _, seen := lastSeen[msg.Author.ID]; !seen {
			order = append(order, msg.Author.ID)
		}
		lastSeen[msg.Author.ID] = msg.Author

		if msg.FromBot(botID) && isAck(msg) {
			for id, count := range counts {
				if count >= countThreshold {
					counts[id] = 0
					accountedFor[id] = msg.Timestamp
				}
			}
			continue
		}

		if len(window) == windowSize {
			evicted := window[0]
			window = window[1:]
			covered := evicted.Timestamp.Before(accountedFor[evicted.Author.ID])
			if !covered && !evicted.FromBot(botID) {
				counts[evicted.Author.ID]--
			}
		}
		window = append(window, msg)
		if !msg.FromBot(botID) {
			counts[msg.Author.ID]++
		}
	}

	var over []chat.Author
	for _, id := range order {
		if counts[id] >= countThreshold {
			over = append(over, lastSeen[id])
		}
	}
	return over
}

// Underspeakers reports the channel members speaking less than a fair
// share of the most recent windowSize messages.
//
// The transcript is optionally pre-filtered to messages younger than
// timeFilter (zero disables the filter), then trimmed to the most recent
// windowSize entries. If fewer than windowSize messages survive, the
// counter abstains entirely rather than judging partial data. Members
// with no messages at all count as zero. A member is reported when their
// count falls strictly below windowSize/(memberCount*divisor).
//
// OldestConsidered carries the timestamp of the oldest message in the
// judged window so callers can gate re-alerting on window turnover.
type UnderspeakReport struct {
	Members          []chat.AuthorID
	OldestConsidered time.Time
}

// Underspeakers computes the report, or ok=false when the counter
// abstains.
func Underspeakers(transcript chat.Transcript, members []chat.AuthorID, now time.Time, windowSize int, timeFilter time.Duration, divisor float64) (UnderspeakReport, bool) {
	if windowSize < 1 || len(members) == 0 || divisor <= 0 {
		return UnderspeakReport{}, false
	}

	recent := transcript
	if timeFilter > 0 {
		recent = recent.Since(now.Add(-timeFilter))
	}
	recent = recent.Tail(windowSize)
	if len(recent) < windowSize {
		return UnderspeakReport{}, false
	}

	counts := map[chat.AuthorID]int{}
	for _, msg := range recent {
		counts[msg.Author.ID]++
	}

	cutoff := float64(windowSize) / (float64(len(members)) * divisor)
	report := UnderspeakReport{OldestConsidered: recent[0].Timestamp}
	for _, member := range members {
		if float64(counts[member]) < cutoff {
			report.Members = append(report.Members, member)
		}
	}
	return report, true
}

package balance

import (
	"strings"
	"testing"
	"time"

	"diplomat/internal/chat"
)

const bot = chat.BotAuthorID

func msg(id chat.AuthorID, name string, ts int, text string) chat.Message {
	return chat.Message{
		Author:    chat.Author{ID: id, Name: name},
		Timestamp: time.Unix(int64(ts), 0),
		Text:      text,
	}
}

func names(authors []chat.Author) []string {
	out := make([]string, len(authors))
	for i, a := range authors {
		out[i] = a.Name
	}
	return out
}

func TestOverspeakingEmptyTranscriptAbstains(t *testing.T) {
	if got := OverspeakingAuthors(nil, bot, 5, 3, nil); got != nil {
		t.Fatalf("empty transcript: %v", got)
	}
}

func TestOverspeakingHappyPath(t *testing.T) {
	transcript := chat.Transcript{
		msg("1", "Kevin", 1, "asdf"),
		msg("1", "Kevin", 2, "qwerty"),
		msg("1", "Kevin", 3, "zxcv"),
		msg("2", "Tom", 4, "Hey"),
		msg("3", "Jerry", 5, "Bye"),
	}
	got := OverspeakingAuthors(transcript, bot, 5, 3, nil)
	if len(got) != 1 || got[0].Name != "Kevin" {
		t.Fatalf("want exactly Kevin, got %v", names(got))
	}
}

func TestOverspeakingThresholdIsInclusive(t *testing.T) {
	transcript := chat.Transcript{
		msg("2", "Tom", 1, "Hey"),
		msg("3", "Kevin", 2, "a"),
		msg("3", "Kevin", 3, "b"),
	}
	if got := OverspeakingAuthors(transcript, bot, 5, 3, nil); got != nil {
		t.Fatalf("threshold-1 messages must not report: %v", names(got))
	}
	transcript = append(transcript, msg("3", "Kevin", 4, "c"))
	got := OverspeakingAuthors(transcript, bot, 5, 3, nil)
	if len(got) != 1 || got[0].Name != "Kevin" {
		t.Fatalf("exactly threshold messages must report: %v", names(got))
	}
}

func TestOverspeakingTransitionAfterThirdMessage(t *testing.T) {
	transcript := chat.Transcript{
		msg("1", "Tom", 1, "Hey"),
		msg("2", "Jerry", 2, "Bye"),
		msg("3", "Kevin", 3, "asdf"),
		msg("3", "Kevin", 4, "qwerty"),
	}
	if got := OverspeakingAuthors(transcript, bot, 5, 3, nil); got != nil {
		t.Fatalf("two Kevin messages must not report: %v", names(got))
	}
	transcript = append(transcript,
		msg("3", "Kevin", 5, "asdf"),
		msg("3", "Kevin", 6, "qwerty"),
	)
	got := OverspeakingAuthors(transcript, bot, 5, 3, nil)
	if len(got) != 1 || got[0].Name != "Kevin" {
		t.Fatalf("four Kevin messages must report: %v", names(got))
	}
}

func TestOverspeakingCountResetByAcknowledgement(t *testing.T) {
	transcript := chat.Transcript{
		msg("1", "Tom", 1, "Hey"),
		msg("2", "Jerry", 2, "Bye"),
		msg("3", "Kevin", 3, "asdf"),
		msg("3", "Kevin", 4, "qwerty"),
		msg("3", "Kevin", 5, "asdf"),
	}
	got := OverspeakingAuthors(transcript, bot, 5, 3, nil)
	if len(got) != 1 || got[0].Name != "Kevin" {
		t.Fatalf("setup: %v", names(got))
	}

	// The bot posts its warning, then Kevin speaks twice more and Tom once.
	transcript = append(transcript,
		msg(bot, "Chatbot", 6, "Kevin is overspeaking!"),
		msg("3", "Kevin", 7, "asdf"),
		msg("3", "Kevin", 8, "qwerty"),
		msg("1", "Tom", 9, "Hey"),
	)
	if got := OverspeakingAuthors(transcript, bot, 5, 3, nil); got != nil {
		t.Fatalf("count was reset, must not re-report: %v", names(got))
	}
}

func TestOverspeakingResetOnlyAffectsAuthorsAtThreshold(t *testing.T) {
	transcript := chat.Transcript{
		msg("3", "Kevin", 1, "a"),
		msg("3", "Kevin", 2, "b"),
		msg("3", "Kevin", 3, "c"),
		msg("2", "Tom", 4, "one"),
		msg("2", "Tom", 5, "two"),
		msg(bot, "Chatbot", 6, "Kevin is overspeaking!"),
		msg("2", "Tom", 7, "three"),
	}
	got := OverspeakingAuthors(transcript, bot, 5, 3, nil)
	if len(got) != 1 || got[0].Name != "Tom" {
		t.Fatalf("Tom was below threshold at ack time and must still accrue: %v", names(got))
	}
}

func TestOverspeakingAckPredicate(t *testing.T) {
	thankYou := func(m chat.Message) bool { return strings.Contains(m.Text, "Thank you") }
	transcript := chat.Transcript{
		msg("3", "Kevin", 1, "a"),
		msg("3", "Kevin", 2, "b"),
		msg("3", "Kevin", 3, "c"),
		msg(bot, "Chatbot", 4, "general announcement"),
	}
	got := OverspeakingAuthors(transcript, bot, 5, 3, thankYou)
	if len(got) != 1 || got[0].Name != "Kevin" {
		t.Fatalf("non-ack bot message must not reset: %v", names(got))
	}
	transcript = append(transcript, msg(bot, "Chatbot", 5, "Thank you Kevin, let others speak"))
	if got := OverspeakingAuthors(transcript, bot, 5, 3, thankYou); got != nil {
		t.Fatalf("ack phrase must reset: %v", names(got))
	}
}

func TestOverspeakingIdempotentOnUnchangedTranscript(t *testing.T) {
	transcript := chat.Transcript{
		msg("1", "Kevin", 1, "a"),
		msg("1", "Kevin", 2, "b"),
		msg("1", "Kevin", 3, "c"),
		msg("2", "Tom", 4, "Hey"),
	}
	first := OverspeakingAuthors(transcript, bot, 5, 3, nil)
	second := OverspeakingAuthors(transcript, bot, 5, 3, nil)
	if len(first) != len(second) || len(first) != 1 || !first[0].Equal(second[0]) {
		t.Fatalf("re-running on the same snapshot must classify identically: %v vs %v", names(first), names(second))
	}
}

func TestOverspeakingRejectsDegenerateParameters(t *testing.T) {
	transcript := chat.Transcript{msg("1", "Kevin", 1, "a")}
	if got := OverspeakingAuthors(transcript, bot, 0, 1, nil); got != nil {
		t.Fatalf("window < 1 must abstain")
	}
	if got := OverspeakingAuthors(transcript, bot, 2, 3, nil); got != nil {
		t.Fatalf("threshold > window must abstain")
	}
}

func TestUnderspeakersAbstainsBelowFullWindow(t *testing.T) {
	now := time.Unix(100, 0)
	members := []chat.AuthorID{"1", "2", "3"}
	transcript := chat.Transcript{
		msg("1", "Tom", 10, "a"),
		msg("2", "Jerry", 11, "b"),
	}
	for window := 3; window <= 8; window++ {
		if _, ok := Underspeakers(transcript, members, now, window, 0, 2); ok {
			t.Fatalf("window %d with 2 messages must abstain", window)
		}
	}
}

func TestUnderspeakersStrictCutoff(t *testing.T) {
	now := time.Unix(100, 0)
	members := []chat.AuthorID{"1", "2"}
	// window=4, members=2, divisor=2 -> cutoff = 4/(2*2) = 1.0.
	transcript := chat.Transcript{
		msg("1", "Tom", 1, "a"),
		msg("2", "Jerry", 2, "b"),
		msg("1", "Tom", 3, "c"),
		msg("1", "Tom", 4, "d"),
	}
	report, ok := Underspeakers(transcript, members, now, 4, 0, 2)
	if !ok {
		t.Fatalf("full window must not abstain")
	}
	// Jerry has exactly the cutoff count (1) and must NOT be reported.
	if len(report.Members) != 0 {
		t.Fatalf("count equal to cutoff must not report: %v", report.Members)
	}

	// Replace Jerry's message so his count drops below the cutoff.
	transcript = chat.Transcript{
		msg("1", "Tom", 1, "a"),
		msg("1", "Tom", 2, "b"),
		msg("1", "Tom", 3, "c"),
		msg("1", "Tom", 4, "d"),
	}
	report, ok = Underspeakers(transcript, members, now, 4, 0, 2)
	if !ok || len(report.Members) != 1 || report.Members[0] != "2" {
		t.Fatalf("count below cutoff must report: %+v ok=%v", report, ok)
	}
	if !report.OldestConsidered.Equal(time.Unix(1, 0)) {
		t.Fatalf("oldest considered timestamp: %v", report.OldestConsidered)
	}
}

func TestUnderspeakersZeroCountMembersIncluded(t *testing.T) {
	now := time.Unix(100, 0)
	members := []chat.AuthorID{"1", "2", "3"}
	transcript := chat.Transcript{
		msg("1", "Tom", 1, "a"),
		msg("2", "Jerry", 2, "b"),
		msg("1", "Tom", 3, "c"),
		msg("2", "Jerry", 4, "d"),
		msg("1", "Tom", 5, "e"),
		msg("2", "Jerry", 6, "f"),
	}
	// window=6, members=3, divisor=2 -> cutoff = 1.0; silent member 3 is below.
	report, ok := Underspeakers(transcript, members, now, 6, 0, 2)
	if !ok || len(report.Members) != 1 || report.Members[0] != "3" {
		t.Fatalf("silent member must be reported: %+v ok=%v", report, ok)
	}
}

func TestUnderspeakersTimeFilter(t *testing.T) {
	now := time.Unix(600, 0)
	members := []chat.AuthorID{"1", "2"}
	transcript := chat.Transcript{
		msg("1", "Tom", 10, "stale"),
		msg("1", "Tom", 590, "fresh"),
		msg("2", "Jerry", 595, "fresh"),
	}
	// Only two messages survive a 60s filter, short of window 3: abstain.
	if _, ok := Underspeakers(transcript, members, now, 3, time.Minute, 2); ok {
		t.Fatalf("time filter must shrink the candidate set below the window")
	}
	// Without the filter the stale message fills the window.
	if _, ok := Underspeakers(transcript, members, now, 3, 0, 2); !ok {
		t.Fatalf("unfiltered window should judge")
	}
}

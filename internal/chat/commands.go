package chat

import (
	"fmt"
	"strconv"
	"strings"
)

// Command trigger prefixes recognized inside transcript text. These are
// plain string prefixes, not a grammar; each plugin matches the trigger
// it owns against the latest message.
const (
	CmdStartDiscussion = "/start discussion time="
	CmdManageEvent     = "/diplomat manage event="
	CmdAssignTimes     = "/diplomat assign times"
	CmdMeetingResults  = "/diplomat show meeting results="
	CmdActivateMention = "/activate mention_plugin time="
	CmdSummarize       = "/summarize days="
	CmdStartWizard     = "/start diplomat"
)

// Digits extracts the numeric argument of a command by collecting every
// digit character in the text and parsing the concatenation. Non-digit
// characters, minus signs included, are discarded, so negative numbers
// and multi-field numeric commands cannot be expressed. The permissive
// scan is kept on purpose; only the empty case becomes an explicit error
// instead of a conversion crash.
func Digits(text string) (int, error) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, fmt.Errorf("chat: no numeric argument in %q", text)
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, fmt.Errorf("chat: numeric argument in %q overflows", text)
	}
	return n, nil
}

// IntList parses a bracketed integer list of the form "[3, 5,10]" from
// the given text. Each element must parse as a non-negative integer; the
// first malformed element is reported by position.
func IntList(text string) ([]int, error) {
	open := strings.Index(text, "[")
	closing := strings.LastIndex(text, "]")
	if open == -1 || closing == -1 || closing < open {
		return nil, fmt.Errorf("chat: expected a bracketed list like [10,15,5]")
	}
	body := strings.TrimSpace(text[open+1 : closing])
	if body == "" {
		return nil, fmt.Errorf("chat: bracketed list is empty")
	}
	parts := strings.Split(body, ",")
	values := make([]int, 0, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("chat: list element %d (%q) is not an integer", i+1, strings.TrimSpace(part))
		}
		if n < 0 {
			return nil, fmt.Errorf("chat: list element %d must not be negative", i+1)
		}
		values = append(values, n)
	}
	return values, nil
}

// HasCommand reports whether the latest transcript message starts with
// the given trigger. The empty transcript never matches.
func HasCommand(t Transcript, trigger string) bool {
	last, ok := t.Latest()
	if !ok {
		return false
	}
	return strings.HasPrefix(last.Text, trigger)
}

package decidio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"diplomat/internal/chat"
	dsvc "diplomat/internal/decidio"
	"diplomat/internal/plugin"
)

const bot = chat.BotAuthorID

type fakeClient struct {
	event      dsvc.Event
	eventErr   error
	statuses   map[int]string
	statusErr  error
	setErr     error
	setCalls   []string
	results    map[int][]string
	resultsErr error
}

func (f *fakeClient) Event(_ context.Context, id int) (dsvc.Event, error) {
	if f.eventErr != nil {
		return dsvc.Event{}, f.eventErr
	}
	if id != f.event.ID {
		return dsvc.Event{}, &dsvc.StatusError{Operation: "get event", Code: 404}
	}
	return f.event, nil
}

func (f *fakeClient) MeetingStatuses(_ context.Context, _ int) ([]dsvc.Meeting, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	var out []dsvc.Meeting
	for _, m := range f.event.Meetings {
		status := m.Status
		if s, ok := f.statuses[m.ID]; ok {
			status = s
		}
		out = append(out, dsvc.Meeting{ID: m.ID, Name: m.Name, Status: status})
	}
	return out, nil
}

func (f *fakeClient) SetMeetingStatus(_ context.Context, meetingID int, status string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls = append(f.setCalls, fmt.Sprintf("%d=%s", meetingID, status))
	if f.statuses == nil {
		f.statuses = map[int]string{}
	}
	f.statuses[meetingID] = status
	return nil
}

func (f *fakeClient) RankedResults(_ context.Context, meetingID, _ int) ([]string, error) {
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	return f.results[meetingID], nil
}

func newFake() *fakeClient {
	return &fakeClient{
		event: dsvc.Event{
			ID:      42,
			Name:    "Sprint Review",
			Creator: "kevin",
			Participants: []dsvc.Participant{
				{Name: "kevin"}, {Name: "diplomat"},
			},
			Meetings: []dsvc.Meeting{
				{ID: 1, Name: "Demo", Status: dsvc.StatusScheduled},
				{ID: 2, Name: "Retro", Status: dsvc.StatusScheduled},
			},
		},
	}
}

func msg(text string, ts time.Time) chat.Transcript {
	return chat.Transcript{{
		Author:    chat.Author{ID: "U1", Name: "Kevin"},
		Timestamp: ts,
		Text:      text,
	}}
}

func newPlugin(t *testing.T, fake *fakeClient, now *time.Time) *Plugin {
	t.Helper()
	p, err := New(plugin.Config{}, WithClient(fake), WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func mustOne(t *testing.T) func(out []chat.Intervention, err error) string {
	return func(out []chat.Intervention, err error) string {
		t.Helper()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(out) != 1 {
			t.Fatalf("want one intervention, got %d", len(out))
		}
		return out[0].Message.Text
	}
}

func TestNewRequiresCredentialsWithoutClient(t *testing.T) {
	if _, err := New(plugin.Config{}); err == nil {
		t.Fatalf("missing service config must error")
	}
}

func TestIdleIgnoresChatter(t *testing.T) {
	now := time.Unix(1000, 0)
	p := newPlugin(t, newFake(), &now)
	out, err := p.Generate(context.Background(), msg("good morning", now), bot, nil)
	if err != nil || len(out) != 0 {
		t.Fatalf("idle chatter: %v %v", out, err)
	}
}

func TestManageEventValidates(t *testing.T) {
	now := time.Unix(1000, 0)
	fake := newFake()
	p := newPlugin(t, fake, &now)
	text := mustOne(t)(p.Generate(context.Background(), msg("/diplomat manage event=42", now), bot, nil))
	if !strings.Contains(text, "Sprint Review") || !strings.Contains(text, "1. Demo") || !strings.Contains(text, "2. Retro") {
		t.Fatalf("summary: %q", text)
	}
	if p.state != stateAwaitingTimes {
		t.Fatalf("state = %v, want awaiting times", p.state)
	}
}

func TestManageUnknownEventResets(t *testing.T) {
	now := time.Unix(1000, 0)
	p := newPlugin(t, newFake(), &now)
	text := mustOne(t)(p.Generate(context.Background(), msg("/diplomat manage event=99", now), bot, nil))
	if !strings.Contains(text, "99") {
		t.Fatalf("missing-event message: %q", text)
	}
	if p.state != stateIdle {
		t.Fatalf("validation failure must reset to idle")
	}

	// The same command again gets the same outcome: no partial state
	// survived the first failure.
	repeat := mustOne(t)(p.Generate(context.Background(), msg("/diplomat manage event=99", now.Add(time.Second)), bot, nil))
	if repeat != text {
		t.Fatalf("second attempt diverged: %q vs %q", repeat, text)
	}
	if p.state != stateIdle {
		t.Fatalf("second failure must leave the machine idle")
	}
}

func TestBadCredentialsReported(t *testing.T) {
	now := time.Unix(1000, 0)
	fake := newFake()
	fake.eventErr = dsvc.ErrUnauthorized
	p := newPlugin(t, fake, &now)
	text := mustOne(t)(p.Generate(context.Background(), msg("/diplomat manage event=42", now), bot, nil))
	if !strings.Contains(text, "credentials") {
		t.Fatalf("auth failure message: %q", text)
	}
	if p.state != stateIdle {
		t.Fatalf("auth failure must reset to idle")
	}
}

func TestMissingDiplomatParticipant(t *testing.T) {
	now := time.Unix(1000, 0)
	fake := newFake()
	fake.event.Participants = []dsvc.Participant{{Name: "kevin"}}
	p := newPlugin(t, fake, &now)
	text := mustOne(t)(p.Generate(context.Background(), msg("/diplomat manage event=42", now), bot, nil))
	if !strings.Contains(text, "add diplomat") {
		t.Fatalf("participant message: %q", text)
	}
	if p.state != stateIdle {
		t.Fatalf("missing participant must reset to idle")
	}
}

func TestAssignTimesCountMismatch(t *testing.T) {
	now := time.Unix(1000, 0)
	p := newPlugin(t, newFake(), &now)
	ctx := context.Background()
	mustOne(t)(p.Generate(ctx, msg("/diplomat manage event=42", now), bot, nil))

	text := mustOne(t)(p.Generate(ctx, msg("/diplomat assign times [10]", now), bot, nil))
	if !strings.Contains(text, "Expected 2") {
		t.Fatalf("mismatch message: %q", text)
	}
	if p.state != stateAwaitingTimes {
		t.Fatalf("bad input must leave state untouched")
	}
}

func TestFullRunLifecycle(t *testing.T) {
	now := time.Unix(10000, 0)
	fake := newFake()
	p := newPlugin(t, fake, &now)
	ctx := context.Background()

	mustOne(t)(p.Generate(ctx, msg("/diplomat manage event=42", now), bot, nil))
	text := mustOne(t)(p.Generate(ctx, msg("/diplomat assign times [10,5]", now), bot, nil))
	if !strings.Contains(text, "15 minutes total") {
		t.Fatalf("schedule ack: %q", text)
	}

	// First poll starts the first meeting.
	text = mustOne(t)(p.Generate(ctx, nil, bot, nil))
	if !strings.Contains(text, `Starting "Demo"`) {
		t.Fatalf("start message: %q", text)
	}

	// Mid-meeting polls stay quiet.
	now = now.Add(3 * time.Minute)
	if out, _ := p.Generate(ctx, nil, bot, nil); len(out) != 0 {
		t.Fatalf("mid-meeting poll must be silent: %+v", out)
	}

	// Within the notify window: one-shot warning.
	now = now.Add(3 * time.Minute)
	text = mustOne(t)(p.Generate(ctx, nil, bot, nil))
	if !strings.Contains(text, "minutes left") {
		t.Fatalf("warning: %q", text)
	}
	if out, _ := p.Generate(ctx, nil, bot, nil); len(out) != 0 {
		t.Fatalf("warning must fire once: %+v", out)
	}

	// Allotment spent: stop Demo, then start Retro on the next poll.
	now = now.Add(5 * time.Minute)
	text = mustOne(t)(p.Generate(ctx, nil, bot, nil))
	if !strings.Contains(text, `Time is up for "Demo"`) {
		t.Fatalf("stop message: %q", text)
	}
	text = mustOne(t)(p.Generate(ctx, nil, bot, nil))
	if !strings.Contains(text, `Starting "Retro"`) {
		t.Fatalf("second start: %q", text)
	}

	// Retro runs past the total: stop, then close out.
	now = now.Add(6 * time.Minute)
	text = mustOne(t)(p.Generate(ctx, nil, bot, nil))
	if !strings.Contains(text, `Time is up for "Retro"`) {
		t.Fatalf("second stop: %q", text)
	}
	text = mustOne(t)(p.Generate(ctx, nil, bot, nil))
	if !strings.Contains(text, "All meetings") {
		t.Fatalf("closing summary: %q", text)
	}
	if p.state != stateIdle {
		t.Fatalf("completed run must reset to idle")
	}

	want := []string{"1=in_progress", "1=completed", "2=in_progress", "2=completed"}
	if len(fake.setCalls) != len(want) {
		t.Fatalf("status calls: %v", fake.setCalls)
	}
	for i, call := range want {
		if fake.setCalls[i] != call {
			t.Fatalf("status call %d: got %s, want %s", i, fake.setCalls[i], call)
		}
	}
}

func TestRunningSurvivesServiceOutage(t *testing.T) {
	now := time.Unix(10000, 0)
	fake := newFake()
	p := newPlugin(t, fake, &now)
	ctx := context.Background()
	mustOne(t)(p.Generate(ctx, msg("/diplomat manage event=42", now), bot, nil))
	mustOne(t)(p.Generate(ctx, msg("/diplomat assign times [10,5]", now), bot, nil))

	fake.statusErr = errors.New("connection refused")
	text := mustOne(t)(p.Generate(ctx, nil, bot, nil))
	if !strings.Contains(text, "retry") {
		t.Fatalf("outage message: %q", text)
	}
	if p.state != stateRunning {
		t.Fatalf("outage must keep the run alive")
	}

	fake.statusErr = nil
	text = mustOne(t)(p.Generate(ctx, nil, bot, nil))
	if !strings.Contains(text, `Starting "Demo"`) {
		t.Fatalf("recovery poll: %q", text)
	}
}

func TestMeetingResultsAnyState(t *testing.T) {
	now := time.Unix(1000, 0)
	fake := newFake()
	fake.results = map[int][]string{7: {"ship it", "wait a week"}}
	p := newPlugin(t, fake, &now)
	ctx := context.Background()

	text := mustOne(t)(p.Generate(ctx, msg("/diplomat show meeting results=7", now), bot, nil))
	if !strings.Contains(text, "1. ship it") || !strings.Contains(text, "2. wait a week") {
		t.Fatalf("results: %q", text)
	}
	if p.state != stateIdle {
		t.Fatalf("results query must not change state")
	}

	text = mustOne(t)(p.Generate(ctx, msg("/diplomat show meeting results=8", now), bot, nil))
	if !strings.Contains(text, "no results yet") {
		t.Fatalf("empty results: %q", text)
	}
}

// Package decidio manages a multi-meeting event on the external
// decision service: it validates the event, collects per-meeting time
// allotments from the channel, then starts and stops the meetings on
// schedule.
package decidio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"diplomat/internal/chat"
	"diplomat/internal/decidio"
	"diplomat/internal/plugin"
)

const (
	pluginID      = "decidio"
	pluginVersion = "1.0.0"

	senderName = "DecidioManager"

	defaultNotifyBefore = 5
	defaultResultsTop   = 3
)

type state int

const (
	stateIdle state = iota
	stateAwaitingTimes
	stateRunning
)

// plannedMeeting pairs a meeting with its cumulative end offset from
// the event start.
type plannedMeeting struct {
	meeting decidio.Meeting
	endsAt  time.Duration
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

// WithClient injects a service client, bypassing the HTTP client built
// from the url/username/password config fields.
func WithClient(c decidio.Client) Option {
	return func(p *Plugin) {
		if c != nil {
			p.client = c
		}
	}
}

// Plugin drives the event workflow. It keeps no state across process
// restarts; an interrupted event has to be managed again from the top.
type Plugin struct {
	client       decidio.Client
	notifyBefore time.Duration
	resultsTop   int

	state    state
	eventID  int
	event    decidio.Event
	plan     []plannedMeeting
	started  time.Time
	notified bool

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

// New validates the configuration and constructs the plugin. Unless a
// client is injected, the url, username and password fields are
// required and back an HTTP client.
func New(cfg plugin.Config, opts ...Option) (*Plugin, error) {
	notifyBefore, err := cfg.IntOr(pluginID, "notify_before_minutes", defaultNotifyBefore)
	if err != nil {
		return nil, err
	}
	if notifyBefore < 1 {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "notify_before_minutes", Reason: "must be >= 1"}
	}
	resultsTop, err := cfg.IntOr(pluginID, "results_top", defaultResultsTop)
	if err != nil {
		return nil, err
	}
	if resultsTop < 1 {
		return nil, &plugin.ConfigError{Plugin: pluginID, Field: "results_top", Reason: "must be >= 1"}
	}

	p := &Plugin{
		notifyBefore: time.Duration(notifyBefore) * time.Minute,
		resultsTop:   resultsTop,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		url, err := cfg.String(pluginID, "url")
		if err != nil {
			return nil, err
		}
		username, err := cfg.String(pluginID, "username")
		if err != nil {
			return nil, err
		}
		password, err := cfg.String(pluginID, "password")
		if err != nil {
			return nil, err
		}
		client, err := decidio.NewHTTPClient(url, username, password)
		if err != nil {
			return nil, &plugin.ConfigError{Plugin: pluginID, Field: "url", Reason: err.Error()}
		}
		p.client = client
	}
	return p, nil
}

// Info implements plugin.Plugin.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		ID:          pluginID,
		Name:        "Decidio Manager",
		Description: "Runs a decision event's meetings on an agreed schedule.",
		Version:     pluginVersion,
	}
}

// Generate implements plugin.Plugin.
func (p *Plugin) Generate(ctx context.Context, transcript chat.Transcript, botID chat.AuthorID, _ []chat.AuthorID) ([]chat.Intervention, error) {
	latest, ok := transcript.Latest()

	// Results queries work in any state and never touch it.
	if ok && !latest.FromBot(botID) && strings.HasPrefix(latest.Text, chat.CmdMeetingResults) {
		return p.meetingResults(ctx, latest.Text, botID), nil
	}

	switch p.state {
	case stateIdle:
		if !ok || latest.FromBot(botID) || !strings.HasPrefix(latest.Text, chat.CmdManageEvent) {
			return nil, nil
		}
		return p.validateEvent(ctx, latest.Text, botID), nil
	case stateAwaitingTimes:
		if !ok || latest.FromBot(botID) || !strings.HasPrefix(latest.Text, chat.CmdAssignTimes) {
			return nil, nil
		}
		return p.assignTimes(latest.Text, botID), nil
	case stateRunning:
		return p.advance(ctx, botID), nil
	}
	return nil, nil
}

// validateEvent authenticates, fetches the event and enumerates its
// scheduled meetings. Every failure resets to idle with an explanation.
func (p *Plugin) validateEvent(ctx context.Context, command string, botID chat.AuthorID) []chat.Intervention {
	id, err := chat.Digits(command)
	if err != nil {
		return p.say(botID, "I could not find an event id in that command. Try `/diplomat manage event=<id>`.")
	}

	event, err := p.client.Event(ctx, id)
	if err != nil {
		p.reset()
		if errors.Is(err, decidio.ErrUnauthorized) {
			return p.say(botID, "The credentials in the config do not match.")
		}
		return p.say(botID, fmt.Sprintf("Event with id %d could not be fetched. Does it exist?", id))
	}
	if !event.HasParticipant("diplomat") {
		p.reset()
		return p.say(botID, "Diplomat is not added to the event. Please add diplomat and try again.")
	}

	scheduled := event.ScheduledMeetings()
	if len(scheduled) == 0 {
		p.reset()
		return p.say(botID, fmt.Sprintf("Event %q has no scheduled meetings left to run.", event.Name))
	}

	p.eventID = id
	p.event = event
	p.plan = p.plan[:0]
	for _, m := range scheduled {
		p.plan = append(p.plan, plannedMeeting{meeting: m})
	}
	p.state = stateAwaitingTimes

	var b strings.Builder
	fmt.Fprintf(&b, "Diplomat will help you manage %q (created by %s).\n", event.Name, event.Creator)
	fmt.Fprintf(&b, "Meetings to run:\n")
	for i, m := range scheduled {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, m.Name)
	}
	fmt.Fprintf(&b, "Assign minutes per meeting with `%s [a,b,...]` (%d values).", chat.CmdAssignTimes, len(scheduled))
	return p.say(botID, b.String())
}

// assignTimes parses the allotment list and builds the cumulative
// schedule. Bad input leaves the state untouched.
func (p *Plugin) assignTimes(command string, botID chat.AuthorID) []chat.Intervention {
	minutes, err := chat.IntList(command)
	if err != nil {
		return p.say(botID, "I could not parse that list. Use `/diplomat assign times [10,15,5]`.")
	}
	if len(minutes) != len(p.plan) {
		return p.say(botID, fmt.Sprintf("Expected %d time values, got %d. Please try again.", len(p.plan), len(minutes)))
	}
	for _, m := range minutes {
		if m < 1 {
			return p.say(botID, "Every meeting needs at least one minute.")
		}
	}

	var total time.Duration
	for i := range p.plan {
		total += time.Duration(minutes[i]) * time.Minute
		p.plan[i].endsAt = total
	}
	p.started = p.now()
	p.notified = false
	p.state = stateRunning
	return p.say(botID, fmt.Sprintf("Schedule accepted. Running %q for %d minutes total.", p.event.Name, int(total.Minutes())))
}

// advance is the per-poll Running step: stop the current meeting when
// its allotment is spent, warn shortly before that, or start the next
// one. Service failures leave the state intact for the next poll.
func (p *Plugin) advance(ctx context.Context, botID chat.AuthorID) []chat.Intervention {
	live, err := p.client.MeetingStatuses(ctx, p.eventID)
	if err != nil {
		return p.say(botID, "The decision service is not responding. I will retry on the next poll.")
	}
	statuses := make(map[int]string, len(live))
	for _, m := range live {
		statuses[m.ID] = m.Status
	}

	elapsed := p.now().Sub(p.started)
	for _, planned := range p.plan {
		switch statuses[planned.meeting.ID] {
		case decidio.StatusInProgress:
			if elapsed >= planned.endsAt {
				if err := p.client.SetMeetingStatus(ctx, planned.meeting.ID, decidio.StatusCompleted); err != nil {
					return p.say(botID, fmt.Sprintf("Could not stop %q. I will retry on the next poll.", planned.meeting.Name))
				}
				p.notified = false
				return p.say(botID, fmt.Sprintf("Time is up for %q. Wrapping it up.", planned.meeting.Name))
			}
			remaining := planned.endsAt - elapsed
			if remaining <= p.notifyBefore && !p.notified {
				p.notified = true
				return p.say(botID, fmt.Sprintf("%q has about %d minutes left.", planned.meeting.Name, int(remaining.Minutes())))
			}
			return nil
		case decidio.StatusScheduled:
			if err := p.client.SetMeetingStatus(ctx, planned.meeting.ID, decidio.StatusInProgress); err != nil {
				return p.say(botID, fmt.Sprintf("Could not start %q. I will retry on the next poll.", planned.meeting.Name))
			}
			p.notified = false
			return p.say(botID, fmt.Sprintf("Starting %q now.", planned.meeting.Name))
		}
	}

	// Everything completed.
	name := p.event.Name
	p.reset()
	return p.say(botID, fmt.Sprintf("All meetings of %q are done. See rankings with `%s<meeting id>`.", name, chat.CmdMeetingResults))
}

func (p *Plugin) meetingResults(ctx context.Context, command string, botID chat.AuthorID) []chat.Intervention {
	id, err := chat.Digits(command)
	if err != nil {
		return p.say(botID, "I could not find a meeting id in that command.")
	}
	results, err := p.client.RankedResults(ctx, id, p.resultsTop)
	if err != nil {
		return p.say(botID, fmt.Sprintf("Results for meeting %d could not be fetched.", id))
	}
	if len(results) == 0 {
		return p.say(botID, fmt.Sprintf("Meeting %d has no results yet.", id))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Top results for meeting %d:\n", id)
	for i, r := range results {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, r)
	}
	return p.say(botID, strings.TrimRight(b.String(), "\n"))
}

func (p *Plugin) reset() {
	p.state = stateIdle
	p.eventID = 0
	p.event = decidio.Event{}
	p.plan = nil
	p.started = time.Time{}
	p.notified = false
}

func (p *Plugin) say(botID chat.AuthorID, text string) []chat.Intervention {
	return []chat.Intervention{chat.Broadcast(botID, senderName, text)}
}

// Package decidio talks to the external event/meeting-management
// service. The workflow plugin depends only on the Client interface so
// its state machine can be driven deterministically in tests.
package decidio

import (
	"context"
	"errors"
	"fmt"
)

// Meeting statuses as the service reports them.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// ErrUnauthorized reports failed authentication against the service.
var ErrUnauthorized = errors.New("decidio: invalid credentials")

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Operation string
	Code      int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("decidio: %s returned status %d", e.Operation, e.Code)
}

// Participant is one member attached to an event.
type Participant struct {
	Name string `json:"name"`
}

// Meeting is one sub-meeting of an event.
type Meeting struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Event is the scheduling unit the workflow plugin manages.
type Event struct {
	ID           int           `json:"id"`
	Name         string        `json:"name"`
	Creator      string        `json:"creator"`
	Participants []Participant `json:"participants"`
	Meetings     []Meeting     `json:"meetings"`
}

// HasParticipant reports whether a participant with the given name is
// attached to the event.
func (e Event) HasParticipant(name string) bool {
	for _, p := range e.Participants {
		if p.Name == name {
			return true
		}
	}
	return false
}

// ScheduledMeetings returns the event's meetings still in the
// "scheduled" status, preserving service order.
func (e Event) ScheduledMeetings() []Meeting {
	var out []Meeting
	for _, m := range e.Meetings {
		if m.Status == StatusScheduled {
			out = append(out, m)
		}
	}
	return out
}

// Client is the operations surface the workflow plugin needs. Every
// call is synchronous and may fail with a network error, a StatusError,
// or ErrUnauthorized; implementations handle authentication internally.
type Client interface {
	// Event fetches one event with participants and meetings.
	Event(ctx context.Context, id int) (Event, error)
	// MeetingStatuses fetches the live status of an event's meetings.
	MeetingStatuses(ctx context.Context, eventID int) ([]Meeting, error)
	// SetMeetingStatus transitions one meeting to the given status.
	SetMeetingStatus(ctx context.Context, meetingID int, status string) error
	// RankedResults returns the top-k ranked results of a meeting, or
	// an empty list when no results exist yet.
	RankedResults(ctx context.Context, meetingID, topK int) ([]string, error)
}

// Package engine runs the poll loop: snapshot the transcript, hand it
// to every plugin, and deliver whatever interventions come back.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"diplomat/internal/chat"
	"diplomat/internal/plugin"
)

// TranscriptSource produces the current transcript snapshot of the
// watched channel, oldest message first.
type TranscriptSource interface {
	Transcript(ctx context.Context) (chat.Transcript, error)
}

// DeliverySink posts one intervention back into the channel.
type DeliverySink interface {
	Deliver(ctx context.Context, intervention chat.Intervention) error
}

// MembershipLookup lists the channel's participating members, bot and
// observers excluded.
type MembershipLookup interface {
	Members(ctx context.Context) ([]chat.AuthorID, error)
}

// Logger is the subset of the file logger the engine needs.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Option customizes the engine instance.
type Option func(*Engine)

// WithLogger attaches a logger for poll diagnostics.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithPluginTimeout bounds each plugin's evaluation per poll.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// Engine evaluates a fixed plugin roster against transcript snapshots.
// Plugins keep their own state between polls, so the roster is built
// once and reused for the process lifetime.
type Engine struct {
	plugins []plugin.Plugin
	source  TranscriptSource
	sink    DeliverySink
	lookup  MembershipLookup
	botID   chat.AuthorID
	timeout time.Duration
	log     Logger
}

// New wires the engine to its transport and plugin roster. The roster
// order is preserved in the aggregated output.
func New(plugins []plugin.Plugin, source TranscriptSource, sink DeliverySink, lookup MembershipLookup, botID chat.AuthorID, opts ...Option) (*Engine, error) {
	if source == nil || sink == nil || lookup == nil {
		return nil, fmt.Errorf("engine: transcript source, delivery sink and membership lookup are required")
	}
	if botID == "" {
		return nil, fmt.Errorf("engine: bot author id is required")
	}
	e := &Engine{
		plugins: plugins,
		source:  source,
		sink:    sink,
		lookup:  lookup,
		botID:   botID,
		timeout: 10 * time.Second,
		log:     nopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate runs one poll cycle and returns the aggregated
// interventions in roster order. Transport failures produce an empty
// poll rather than an error so a flaky connection cannot kill the
// loop; plugin failures and panics are isolated per plugin.
func (e *Engine) Evaluate(ctx context.Context) []chat.Intervention {
	pollID := uuid.NewString()

	transcript, err := e.source.Transcript(ctx)
	if err != nil {
		e.log.Printf("poll %s: transcript fetch failed: %v", pollID, err)
		return nil
	}
	members, err := e.lookup.Members(ctx)
	if err != nil {
		e.log.Printf("poll %s: member lookup failed: %v", pollID, err)
		return nil
	}

	results := make([][]chat.Intervention, len(e.plugins))
	var g errgroup.Group
	for i, p := range e.plugins {
		i, p := i, p
		g.Go(func() error {
			pluginCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()
			out, err := e.runPlugin(pluginCtx, p, transcript, members)
			if err != nil {
				e.log.Printf("poll %s: plugin %s: %v", pollID, p.Info().ID, err)
				return nil
			}
			results[i] = out
			return nil
		})
	}
	g.Wait()

	var aggregated []chat.Intervention
	for _, out := range results {
		aggregated = append(aggregated, out...)
	}
	if len(aggregated) > 0 {
		e.log.Printf("poll %s: %d intervention(s)", pollID, len(aggregated))
	}
	return aggregated
}

// runPlugin converts a panicking plugin into an error so one bad
// plugin cannot take the poll loop down.
func (e *Engine) runPlugin(ctx context.Context, p plugin.Plugin, transcript chat.Transcript, members []chat.AuthorID) (out []chat.Intervention, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Generate(ctx, transcript, e.botID, members)
}

// Run polls at the given interval until the context is cancelled.
// Delivery failures are logged and the intervention dropped; the next
// poll regenerates anything still relevant.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("engine: poll interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, intervention := range e.Evaluate(ctx) {
				if err := e.sink.Deliver(ctx, intervention); err != nil {
					e.log.Printf("deliver to %q failed: %v", intervention.Recipient, err)
				}
			}
		}
	}
}

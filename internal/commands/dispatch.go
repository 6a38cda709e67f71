package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// EventKind discriminates gateway payloads.
type EventKind string

const (
	// EventInteraction is a user-issued command invocation.
	EventInteraction EventKind = "interaction"
)

// ErrUnknownEvent means no handler is registered for the event kind.
var ErrUnknownEvent = errors.New("no handler for event kind")

// Event is a gateway payload reduced to what handlers need.
type Event struct {
	Kind      EventKind
	Command   string
	DiscordID string
	Options   map[string]string
}

// Effect is what handling an event produced.
type Effect struct {
	Reply Reply
}

// Handler turns an event payload into an effect.
type Handler func(ctx context.Context, ev Event) (Effect, error)

// Dispatcher routes events through an explicit table keyed by kind, so
// handling order never depends on listener registration order.
type Dispatcher struct {
	table map[EventKind]Handler
	log   zerolog.Logger
}

func NewDispatcher(table map[EventKind]Handler, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{table: table, log: log.With().Str("component", "dispatch").Logger()}
}

// Dispatch runs the handler for ev's kind.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (Effect, error) {
	h, ok := d.table[ev.Kind]
	if !ok {
		return Effect{}, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Kind)
	}
	d.log.Debug().Str("kind", string(ev.Kind)).Str("command", ev.Command).Msg("dispatching event")
	return h(ctx, ev)
}

// InteractionHandler adapts the registry into a dispatch-table entry.
func InteractionHandler(reg *Registry) Handler {
	return func(ctx context.Context, ev Event) (Effect, error) {
		cmd, ok := reg.Get(ev.Command)
		if !ok {
			return Effect{}, fmt.Errorf("unknown command %q", ev.Command)
		}
		reply, err := cmd.Execute(ctx, Invocation{DiscordID: ev.DiscordID, Options: ev.Options})
		if err != nil {
			return Effect{}, err
		}
		return Effect{Reply: reply}, nil
	}
}

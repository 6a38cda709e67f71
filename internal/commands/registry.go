// Package commands holds the closed, compile-time-enumerated set of user
// commands and the event dispatch table that routes payloads to them. There
// is no runtime discovery; adding a command means adding it to the registry
// constructed in main.
package commands

import (
	"context"
	"fmt"
)

// Description is the user-visible shape of a command.
type Description struct {
	Name string
	Help string
}

// Invocation carries the caller identity and named options.
type Invocation struct {
	DiscordID string
	Options   map[string]string
}

// Reply is the text a command hands back for presentation.
type Reply struct {
	Text string
}

// Command is the fixed capability interface every handler implements.
type Command interface {
	Describe() Description
	Execute(ctx context.Context, inv Invocation) (Reply, error)
}

// Registry maps command names to handlers. The set is closed at
// construction time.
type Registry struct {
	cmds  map[string]Command
	names []string
}

// NewRegistry builds the registry; duplicate names are a programming error.
func NewRegistry(cmds ...Command) (*Registry, error) {
	r := &Registry{cmds: make(map[string]Command, len(cmds))}
	for _, cmd := range cmds {
		name := cmd.Describe().Name
		if _, dup := r.cmds[name]; dup {
			return nil, fmt.Errorf("duplicate command %q", name)
		}
		r.cmds[name] = cmd
		r.names = append(r.names, name)
	}
	return r, nil
}

// Get looks up a command by name.
func (r *Registry) Get(name string) (Command, bool) {
	cmd, ok := r.cmds[name]
	return cmd, ok
}

// Names returns command names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

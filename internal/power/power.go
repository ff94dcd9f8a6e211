// Package power defines the capability set every power-control backend
// (relay, PDU, IP switch) implements, plus the registry that builds a
// backend from its configured variant name.
package power

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// State is a power state snapshot as reported by a backend.
type State string

// Power states. Only Off and On describe the board; Unsure means the
// backend could not tell and Locked means another owner holds the board.
const (
	Off    State = "OFF"
	On     State = "ON"
	Unsure State = "???"
	Locked State = "LOCKED"
)

// Known reports whether s is a definite ON/OFF reading.
func (s State) Known() bool { return s == On || s == Off }

// ParseState maps backend output to a State, returning Unsure for
// anything that is not clearly ON or OFF.
func ParseState(s string) State {
	switch State(s) {
	case On, Off, Locked:
		return State(s)
	}
	return Unsure
}

var (
	// ErrConfiguration is returned by Configure for missing or invalid
	// settings.
	ErrConfiguration = errors.New("power: invalid configuration")

	// ErrUnavailable is returned by Probe when the backend cannot be
	// reached.
	ErrUnavailable = errors.New("power: controller unavailable")
)

// Controller is implemented by every power backend. On, Off and Command
// only request an action; callers confirm the result through Status.
type Controller interface {
	// Configure validates and applies backend-specific settings.
	Configure(settings map[string]string) error

	// Probe verifies the backend is present and reachable.
	Probe(ctx context.Context) error

	// On requests power on.
	On(ctx context.Context) bool

	// Off requests power off.
	Off(ctx context.Context) bool

	// Status returns the current state, Unsure when it cannot be read.
	Status(ctx context.Context) State

	// Toggle flips power and returns the resulting state.
	Toggle(ctx context.Context) State

	// Wait blocks until the backend considers the target powered on.
	Wait(ctx context.Context) error

	// Command sends a raw backend-specific command.
	Command(ctx context.Context, args []string) bool
}

// Factory builds an unconfigured controller.
type Factory func() Controller

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under variant. Registering the same
// variant twice panics.
func Register(variant string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[variant]; dup {
		panic("power: Register called twice for variant " + variant)
	}
	registry[variant] = f
}

// New builds and configures the controller registered under variant.
func New(variant string, settings map[string]string) (Controller, error) {
	registryMu.RLock()
	f, ok := registry[variant]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown variant %q", ErrConfiguration, variant)
	}
	c := f()
	if err := c.Configure(settings); err != nil {
		return nil, err
	}
	return c, nil
}

// Variants lists registered backend names in sorted order.
func Variants() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("mock", func() Controller { return NewMock() })
	Register("shell", func() Controller { return &Shell{} })
}

// Package media controls the SD-card multiplexer that hands the target's
// boot storage between the host and the target.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Location says which side currently owns the shared storage.
type Location string

// Storage locations.
const (
	Host    Location = "HOST"
	Target  Location = "TARGET"
	Unknown Location = "???"
)

var (
	// ErrConfiguration is returned by Configure for missing or invalid
	// settings.
	ErrConfiguration = errors.New("media: invalid configuration")

	// ErrUnavailable is returned by Probe when the mux cannot be reached.
	ErrUnavailable = errors.New("media: mux unavailable")

	// ErrNotOnHost is returned when writing while the host does not own
	// the storage.
	ErrNotOnHost = errors.New("media: storage is not attached to the host")
)

// Mux is implemented by every SD-mux backend. ToHost and ToTarget report
// backend success only; Status is the confirmation.
type Mux interface {
	Configure(settings map[string]string) error
	Probe(ctx context.Context) error
	ToHost(ctx context.Context) bool
	ToTarget(ctx context.Context) bool
	Status(ctx context.Context) Location

	// Open returns a writer onto the shared device. The storage must be
	// attached to the host.
	Open(ctx context.Context) (io.WriteCloser, error)
}

// Factory builds an unconfigured mux.
type Factory func() Mux

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under variant.
func Register(variant string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[variant]; dup {
		panic("media: Register called twice for variant " + variant)
	}
	registry[variant] = f
}

// New builds and configures the mux registered under variant.
func New(variant string, settings map[string]string) (Mux, error) {
	registryMu.RLock()
	f, ok := registry[variant]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown variant %q", ErrConfiguration, variant)
	}
	m := f()
	if err := m.Configure(settings); err != nil {
		return nil, err
	}
	return m, nil
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
	Register("mock", func() Mux { return NewMock() })
	Register("shell", func() Mux { return &Shell{} })
}

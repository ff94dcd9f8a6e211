// Package usb switches the power of the USB ports that carry devices
// under test, addressed either by port index or by device class.
package usb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zulandar/benchyard/internal/power"
)

var (
	// ErrConfiguration is returned by Configure for missing or invalid
	// settings.
	ErrConfiguration = errors.New("usb: invalid configuration")

	// ErrUnavailable is returned by Probe when the switch cannot be
	// reached.
	ErrUnavailable = errors.New("usb: switch unavailable")

	// ErrNoPort is returned for an index or class with no port.
	ErrNoPort = errors.New("usb: no such port")
)

// Switch powers a single USB port. On and Off only request a change;
// Status is the confirmation.
type Switch interface {
	Configure(settings map[string]string) error
	Probe(ctx context.Context) error
	On(ctx context.Context) bool
	Off(ctx context.Context) bool
	Status(ctx context.Context) power.State
}

// Factory builds an unconfigured switch.
type Factory func() Switch

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under variant.
func Register(variant string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[variant]; dup {
		panic("usb: Register called twice for variant " + variant)
	}
	registry[variant] = f
}

// New builds and configures the switch registered under variant.
func New(variant string, settings map[string]string) (Switch, error) {
	registryMu.RLock()
	f, ok := registry[variant]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown variant %q", ErrConfiguration, variant)
	}
	s := f()
	if err := s.Configure(settings); err != nil {
		return nil, err
	}
	return s, nil
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
	Register("mock", func() Switch { return NewMock() })
	Register("shell", func() Switch { return &Shell{} })
}

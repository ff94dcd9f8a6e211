package usb

import (
	"context"
	"fmt"

	"github.com/zulandar/benchyard/internal/power"
)

// Port is one switchable USB port and the class of device plugged in.
// Class may be empty for ports only addressed by index.
type Port struct {
	Class  string
	Switch Switch
}

// Hub groups the board's switchable ports. Index 0 is the first
// configured port.
type Hub struct {
	ports []Port
}

// NewHub returns a hub over ports in configuration order.
func NewHub(ports ...Port) *Hub {
	return &Hub{ports: ports}
}

// Len returns the number of ports.
func (h *Hub) Len() int { return len(h.ports) }

// Ports returns a copy of the configured ports.
func (h *Hub) Ports() []Port {
	out := make([]Port, len(h.ports))
	copy(out, h.ports)
	return out
}

// HasClass reports whether a port carries a device of class.
func (h *Hub) HasClass(class string) bool {
	_, ok := h.byClass(class)
	return ok
}

// OnByClass powers the port carrying class. It returns false when no
// such port exists.
func (h *Hub) OnByClass(ctx context.Context, class string) bool {
	p, ok := h.byClass(class)
	return ok && p.Switch.On(ctx)
}

// OffByClass unpowers the port carrying class. It returns false when no
// such port exists.
func (h *Hub) OffByClass(ctx context.Context, class string) bool {
	p, ok := h.byClass(class)
	return ok && p.Switch.Off(ctx)
}

// On powers port ndx.
func (h *Hub) On(ctx context.Context, ndx int) (bool, error) {
	p, err := h.port(ndx)
	if err != nil {
		return false, err
	}
	return p.Switch.On(ctx), nil
}

// Off unpowers port ndx.
func (h *Hub) Off(ctx context.Context, ndx int) (bool, error) {
	p, err := h.port(ndx)
	if err != nil {
		return false, err
	}
	return p.Switch.Off(ctx), nil
}

// Status reads the power state of port ndx.
func (h *Hub) Status(ctx context.Context, ndx int) (power.State, error) {
	p, err := h.port(ndx)
	if err != nil {
		return power.Unsure, err
	}
	return p.Switch.Status(ctx), nil
}

// Probe probes every port and returns the first failure.
func (h *Hub) Probe(ctx context.Context) error {
	for i, p := range h.ports {
		if err := p.Switch.Probe(ctx); err != nil {
			return fmt.Errorf("usb: port %d: %w", i, err)
		}
	}
	return nil
}

func (h *Hub) port(ndx int) (Port, error) {
	if ndx < 0 || ndx >= len(h.ports) {
		return Port{}, fmt.Errorf("%w: index %d (have %d)", ErrNoPort, ndx, len(h.ports))
	}
	return h.ports[ndx], nil
}

func (h *Hub) byClass(class string) (Port, bool) {
	if class == "" {
		return Port{}, false
	}
	for _, p := range h.ports {
		if p.Class == class {
			return p, true
		}
	}
	return Port{}, false
}

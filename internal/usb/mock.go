package usb

import (
	"context"
	"sync"

	"github.com/zulandar/benchyard/internal/power"
)

// Mock is an in-memory port switch that records calls.
type Mock struct {
	mu    sync.Mutex
	state power.State
	calls []string
	fail  bool
}

// NewMock returns a Mock with the port powered.
func NewMock() *Mock {
	return &Mock{state: power.On}
}

// Configure accepts any settings.
func (m *Mock) Configure(settings map[string]string) error { return nil }

// Probe always succeeds.
func (m *Mock) Probe(ctx context.Context) error { return nil }

// On powers the port unless Fail was set.
func (m *Mock) On(ctx context.Context) bool { return m.set("on", power.On) }

// Off unpowers the port unless Fail was set.
func (m *Mock) Off(ctx context.Context) bool { return m.set("off", power.Off) }

// Status returns the simulated state.
func (m *Mock) Status(ctx context.Context) power.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fail makes subsequent On and Off calls fail.
func (m *Mock) Fail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// Calls returns the recorded calls in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Mock) set(call string, s power.State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if m.fail {
		return false
	}
	m.state = s
	return true
}

package power

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mock is a deterministic in-memory controller. It records every call
// and can be told to fail or to report an indeterminate state.
type Mock struct {
	mu       sync.Mutex
	state    State
	calls    []string
	failOn   bool
	failOff  bool
	failCmd  bool
	probeErr error
	override State
}

// NewMock returns a Mock that starts powered off.
func NewMock() *Mock {
	return &Mock{state: Off}
}

// Configure accepts an optional "state" setting (ON or OFF).
func (m *Mock) Configure(settings map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "configure")
	if s, ok := settings["state"]; ok {
		st := State(strings.ToUpper(s))
		if !st.Known() {
			return fmt.Errorf("%w: mock state %q must be ON or OFF", ErrConfiguration, s)
		}
		m.state = st
	}
	return nil
}

// Probe returns the error set with SetProbeError.
func (m *Mock) Probe(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "probe")
	return m.probeErr
}

// On switches the mock on unless FailOn was set.
func (m *Mock) On(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "on")
	if m.failOn {
		return false
	}
	m.state = On
	return true
}

// Off switches the mock off unless FailOff was set.
func (m *Mock) Off(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "off")
	if m.failOff {
		return false
	}
	m.state = Off
	return true
}

// Status returns the simulated state, or the override set with Report.
func (m *Mock) Status(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "status")
	if m.override != "" {
		return m.override
	}
	return m.state
}

// Toggle flips the simulated state.
func (m *Mock) Toggle(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "toggle")
	if m.override != "" {
		return Unsure
	}
	if m.state == On {
		m.state = Off
	} else {
		m.state = On
	}
	return m.state
}

// Wait returns immediately.
func (m *Mock) Wait(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "wait")
	return ctx.Err()
}

// Command records the arguments and returns true unless FailCommand was set.
func (m *Mock) Command(ctx context.Context, args []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "command "+strings.Join(args, " "))
	return !m.failCmd
}

// Set forces the simulated state.
func (m *Mock) Set(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// Report makes Status return s regardless of the simulated state. An
// empty State clears the override.
func (m *Mock) Report(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override = s
}

// FailOn makes subsequent On calls fail.
func (m *Mock) FailOn(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn = fail
}

// FailOff makes subsequent Off calls fail.
func (m *Mock) FailOff(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOff = fail
}

// FailCommand makes subsequent Command calls fail.
func (m *Mock) FailCommand(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCmd = fail
}

// SetProbeError sets the error returned by Probe.
func (m *Mock) SetProbeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeErr = err
}

// Calls returns the recorded call names in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Count returns how many times call was recorded.
func (m *Mock) Count(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

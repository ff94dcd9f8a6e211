package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Mock is an in-memory mux that records calls and captures written
// images.
type Mock struct {
	mu         sync.Mutex
	location   Location
	calls      []string
	failHost   bool
	failTarget bool
	written    bytes.Buffer
}

// NewMock returns a Mock with the storage attached to the host.
func NewMock() *Mock {
	return &Mock{location: Host}
}

// Configure accepts an optional "location" setting (HOST or TARGET).
func (m *Mock) Configure(settings map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := settings["location"]; ok {
		loc := Location(strings.ToUpper(v))
		if loc != Host && loc != Target {
			return fmt.Errorf("%w: mock location %q must be HOST or TARGET", ErrConfiguration, v)
		}
		m.location = loc
	}
	return nil
}

// Probe always succeeds.
func (m *Mock) Probe(ctx context.Context) error { return nil }

// ToHost attaches the storage to the host unless FailToHost was set.
func (m *Mock) ToHost(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "to_host")
	if m.failHost {
		return false
	}
	m.location = Host
	return true
}

// ToTarget attaches the storage to the target unless FailToTarget was set.
func (m *Mock) ToTarget(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "to_target")
	if m.failTarget {
		return false
	}
	m.location = Target
	return true
}

// Status returns the simulated location.
func (m *Mock) Status(ctx context.Context) Location {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.location
}

// Open returns a writer that appends to the captured image.
func (m *Mock) Open(ctx context.Context) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "open")
	if m.location != Host {
		return nil, ErrNotOnHost
	}
	m.written.Reset()
	return &mockWriter{m: m}, nil
}

// Set forces the simulated location.
func (m *Mock) Set(loc Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.location = loc
}

// FailToHost makes subsequent ToHost calls fail.
func (m *Mock) FailToHost(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failHost = fail
}

// FailToTarget makes subsequent ToTarget calls fail.
func (m *Mock) FailToTarget(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTarget = fail
}

// Calls returns the recorded calls in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Written returns the bytes of the last image written through Open.
func (m *Mock) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.written.Bytes())
}

type mockWriter struct{ m *Mock }

func (w *mockWriter) Write(p []byte) (int, error) {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	return w.m.written.Write(p)
}

func (w *mockWriter) Close() error { return nil }

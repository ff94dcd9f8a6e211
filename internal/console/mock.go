package console

import (
	"context"
	"strings"
	"sync"
)

// MockChannel is a scripted Channel. Tail and Head answer from queues
// filled by the test; Run answers from a map keyed by command. Every
// call is recorded.
type MockChannel struct {
	mu     sync.Mutex
	calls  []string
	tails  []reply
	heads  []reply
	runs   map[string]string
	prompt string

	// OnSend, if set, is called for every Send before it is recorded.
	OnSend func(text string)
}

type reply struct {
	line string
	ok   bool
}

// NewMockChannel returns an empty MockChannel.
func NewMockChannel() *MockChannel {
	return &MockChannel{runs: map[string]string{}}
}

// QueueTail queues lines returned by successive Tail calls.
func (m *MockChannel) QueueTail(lines ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range lines {
		m.tails = append(m.tails, reply{l, true})
	}
}

// QueueNoTail queues n Tail calls that find nothing buffered.
func (m *MockChannel) QueueNoTail(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.tails = append(m.tails, reply{})
	}
}

// QueueHead queues lines returned by successive Head calls.
func (m *MockChannel) QueueHead(lines ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range lines {
		m.heads = append(m.heads, reply{l, true})
	}
}

// SetRun sets the transcript Run returns for command. Each call to
// SetRun replaces the previous answer.
func (m *MockChannel) SetRun(command, transcript string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[command] = transcript
}

func (m *MockChannel) Clear() { m.record("clear") }

func (m *MockChannel) Send(ctx context.Context, text string) error {
	if m.OnSend != nil {
		m.OnSend(text)
	}
	m.record("send " + text)
	return ctx.Err()
}

func (m *MockChannel) Tail() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "tail")
	return pop(&m.tails)
}

func (m *MockChannel) Head() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "head")
	return pop(&m.heads)
}

func (m *MockChannel) Prompt(pattern string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "prompt "+pattern)
	m.prompt = pattern
}

func (m *MockChannel) Run(ctx context.Context, command string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "run "+command)
	return m.runs[command], ctx.Err()
}

// Calls returns the recorded calls in order.
func (m *MockChannel) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Count returns how many recorded calls start with prefix.
func (m *MockChannel) Count(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (m *MockChannel) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func pop(q *[]reply) (string, bool) {
	if len(*q) == 0 {
		return "", false
	}
	r := (*q)[0]
	*q = (*q)[1:]
	return r.line, r.ok
}

package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/clock"
	"github.com/zulandar/benchyard/internal/logging"
)

// Buffer defaults.
const (
	DefaultMaxLines   = 10000
	DefaultRunTimeout = 30 * time.Second
	DefaultRunPoll    = 100 * time.Millisecond
)

// Buffer is a Channel that keeps the lines written to it by a console
// backend and forwards Send to the backend's input.
//
// Buffer is safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	lines   []string
	partial string
	prompt  string
	paused  bool
	out     io.Writer
	mirror  io.Writer

	// MaxLines bounds the retained complete lines; the oldest are dropped.
	MaxLines int
	// RunTimeout bounds how long Run waits for the prompt.
	RunTimeout time.Duration
	RunPoll    time.Duration
	Clock      clock.Clock
	Log        zerolog.Logger
}

// NewBuffer returns a Buffer that sends to out. out may be nil until a
// backend is attached with SetOutput.
func NewBuffer(out io.Writer, log zerolog.Logger) *Buffer {
	return &Buffer{
		out:        out,
		MaxLines:   DefaultMaxLines,
		RunTimeout: DefaultRunTimeout,
		RunPoll:    DefaultRunPoll,
		Clock:      clock.Real(),
		Log:        log,
	}
}

// SetOutput attaches the writer Send delivers to.
func (b *Buffer) SetOutput(out io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out = out
}

// SetMirror copies all captured output, unmodified, to w. A nil w stops
// mirroring.
func (b *Buffer) SetMirror(w io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror = w
}

// Write captures console output. Carriage returns are dropped and lines
// split on newline. Output is discarded while paused.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mirror != nil {
		b.mirror.Write(p)
	}
	if b.paused {
		return len(p), nil
	}
	text := strings.ReplaceAll(string(p), "\r", "")
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			break
		}
		line := b.partial + text[:i]
		b.partial = ""
		text = text[i+1:]
		b.Log.Trace().Str("line", logging.Printable(line)).Msg("console")
		b.lines = append(b.lines, line)
	}
	b.partial += text
	if max := b.MaxLines; max > 0 && len(b.lines) > max {
		b.lines = append([]string(nil), b.lines[len(b.lines)-max:]...)
	}
	return len(p), nil
}

// Clear drops all buffered output.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
	b.partial = ""
}

// Send writes text to the backend.
func (b *Buffer) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	out := b.out
	b.mu.Unlock()
	if out == nil {
		return ErrNotConnected
	}
	b.Log.Trace().Str("text", logging.Printable(text)).Msg("console send")
	if _, err := io.WriteString(out, text); err != nil {
		return fmt.Errorf("console: send: %w", err)
	}
	return nil
}

// Tail returns the unterminated line if there is one, otherwise the
// last complete line.
func (b *Buffer) Tail() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tail()
}

func (b *Buffer) tail() (string, bool) {
	if b.partial != "" {
		return b.partial, true
	}
	if n := len(b.lines); n > 0 {
		return b.lines[n-1], true
	}
	return "", false
}

// Head removes and returns the oldest complete line.
func (b *Buffer) Head() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == 0 {
		return "", false
	}
	line := b.lines[0]
	b.lines = b.lines[1:]
	return line, true
}

// Prompt sets the shell prompt Run waits for.
func (b *Buffer) Prompt(pattern string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompt = pattern
}

// CurrentPrompt returns the installed prompt.
func (b *Buffer) CurrentPrompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prompt
}

// Run clears the buffer, sends command and waits until the prompt shows
// up again after the echoed command. Without a prompt installed it
// waits a single poll interval.
func (b *Buffer) Run(ctx context.Context, command string) (string, error) {
	b.Clear()
	if err := b.Send(ctx, command+"\n"); err != nil {
		return "", err
	}
	prompt := b.CurrentPrompt()
	deadline := b.Clock.Now().Add(b.RunTimeout)
	for {
		if err := clock.Sleep(ctx, b.Clock, b.RunPoll); err != nil {
			return b.Dump(), err
		}
		if prompt == "" || b.promptShown(prompt) {
			return b.Dump(), nil
		}
		if !b.Clock.Now().Before(deadline) {
			return b.Dump(), fmt.Errorf("%w: run %q: waited %s", ErrPromptNotFound, command, b.RunTimeout)
		}
	}
}

func (b *Buffer) promptShown(prompt string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == 0 {
		return false
	}
	line, _ := b.tail()
	return strings.HasSuffix(line, prompt)
}

// Dump returns everything buffered, joined by newlines, without
// consuming it.
func (b *Buffer) Dump() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == 0 {
		return b.partial
	}
	return strings.Join(b.lines, "\n") + "\n" + b.partial
}

// Lines returns the number of complete lines buffered.
func (b *Buffer) Lines() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Pause stops capturing output, typically while the target is off.
func (b *Buffer) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = true
}

// Resume restarts capturing output.
func (b *Buffer) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = false
}

// Paused reports whether capture is paused.
func (b *Buffer) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Package console talks to the target's text console. A Channel buffers
// what the target prints and sends keystrokes back; the Synchronizer
// builds the liveness, login and runtime checks on top of it.
package console

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrConsoleUnreachable means no console output was seen within the
	// retry budget.
	ErrConsoleUnreachable = errors.New("console: unreachable")

	// ErrPromptNotFound means the shell prompt did not show up.
	ErrPromptNotFound = errors.New("console: shell prompt not found")

	// ErrUnknownRuntime means the runtime on the target was not recognised.
	ErrUnknownRuntime = errors.New("console: unknown runtime")

	// ErrNotConnected is returned when sending on a channel with no
	// backend attached.
	ErrNotConnected = errors.New("console: not connected")
)

// Channel is a buffered text console.
type Channel interface {
	// Clear drops everything buffered so far.
	Clear()

	// Send writes text to the target as typed.
	Send(ctx context.Context, text string) error

	// Tail returns the most recent line, including an unterminated one.
	// ok is false when nothing has been buffered.
	Tail() (line string, ok bool)

	// Head removes and returns the oldest complete line.
	Head() (line string, ok bool)

	// Prompt installs the shell prompt Run waits for.
	Prompt(pattern string)

	// Run sends command and returns the transcript: the echoed command,
	// its output lines and the prompt, separated by newlines.
	Run(ctx context.Context, command string) (string, error)
}

// Output returns the lines of a Run transcript between the echoed
// command and the trailing prompt.
func Output(transcript string) []string {
	lines := strings.Split(transcript, "\n")
	if len(lines) < 2 {
		return nil
	}
	return lines[1 : len(lines)-1]
}

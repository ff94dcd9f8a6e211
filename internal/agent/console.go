package agent

import (
	"context"

	"github.com/zulandar/benchyard/internal/console"
)

// Console operations are not guarded by the board lock; the console is
// owned by whichever session drives it.

// ConsoleClear drops buffered console output.
func (a *Agent) ConsoleClear(session string) {
	if a.Console != nil {
		a.Console.Clear()
	}
}

// ConsoleSend types text on the console.
func (a *Agent) ConsoleSend(ctx context.Context, session, text string) error {
	if a.Console == nil {
		return console.ErrNotConnected
	}
	return a.Console.Send(ctx, text)
}

// ConsoleTail returns the most recent console line.
func (a *Agent) ConsoleTail(session string) (string, bool) {
	if a.Console == nil {
		return "", false
	}
	return a.Console.Tail()
}

// ConsoleHead removes and returns the oldest console line.
func (a *Agent) ConsoleHead(session string) (string, bool) {
	if a.Console == nil {
		return "", false
	}
	return a.Console.Head()
}

// ConsolePrompt installs the shell prompt.
func (a *Agent) ConsolePrompt(session, pattern string) {
	if a.Console != nil {
		a.Console.Prompt(pattern)
	}
}

// ConsoleRun runs command and returns its transcript.
func (a *Agent) ConsoleRun(ctx context.Context, session, command string) (string, error) {
	if a.Console == nil {
		return "", console.ErrNotConnected
	}
	return a.Console.Run(ctx, command)
}

// ConsoleDump returns all buffered output when the console supports it.
func (a *Agent) ConsoleDump(session string) string {
	if d, ok := a.Console.(interface{ Dump() string }); ok {
		return d.Dump()
	}
	return ""
}

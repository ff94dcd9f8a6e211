package power

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/zulandar/benchyard/internal/clock"
)

// Shell drives a power switch through operator-supplied shell commands,
// for relays and PDUs that ship with their own CLI.
//
// Settings:
//
//	on        command that switches power on (required)
//	off       command that switches power off (required)
//	status    command printing ON or OFF (optional; Status is ??? without it)
//	check_on  command exiting 0 once the target is up (optional, used by Wait)
//	settle    delay Wait sleeps when check_on is not set (optional, e.g. "5s")
//	probe     command exiting 0 when the switch is reachable (optional)
//	shell     interpreter, default /bin/sh
type Shell struct {
	OnCmd      string
	OffCmd     string
	StatusCmd  string
	CheckOnCmd string
	ProbeCmd   string
	Interp     string
	Settle     time.Duration
	Poll       time.Duration
	Clock      clock.Clock
}

// Configure validates and applies settings.
func (s *Shell) Configure(settings map[string]string) error {
	var missing []string
	s.OnCmd = settings["on"]
	if s.OnCmd == "" {
		missing = append(missing, "on")
	}
	s.OffCmd = settings["off"]
	if s.OffCmd == "" {
		missing = append(missing, "off")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: shell: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	s.StatusCmd = settings["status"]
	s.CheckOnCmd = settings["check_on"]
	s.ProbeCmd = settings["probe"]
	s.Interp = settings["shell"]
	if s.Interp == "" {
		s.Interp = "/bin/sh"
	}
	if v := settings["settle"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: shell: settle %q is not a duration", ErrConfiguration, v)
		}
		s.Settle = d
	}
	if s.Poll == 0 {
		s.Poll = time.Second
	}
	if s.Clock == nil {
		s.Clock = clock.Real()
	}
	return nil
}

// Probe runs the probe command, or checks the interpreter exists.
func (s *Shell) Probe(ctx context.Context) error {
	if s.ProbeCmd == "" {
		if _, err := exec.LookPath(s.Interp); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}
	if out, err := s.run(ctx, s.ProbeCmd); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, strings.TrimSpace(out), err)
	}
	return nil
}

// On runs the on command.
func (s *Shell) On(ctx context.Context) bool {
	_, err := s.run(ctx, s.OnCmd)
	return err == nil
}

// Off runs the off command.
func (s *Shell) Off(ctx context.Context) bool {
	_, err := s.run(ctx, s.OffCmd)
	return err == nil
}

// Status runs the status command and parses the first word of its
// output.
func (s *Shell) Status(ctx context.Context) State {
	if s.StatusCmd == "" {
		return Unsure
	}
	out, err := s.run(ctx, s.StatusCmd)
	if err != nil {
		return Unsure
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return Unsure
	}
	return ParseState(strings.ToUpper(fields[0]))
}

// Toggle reads the state and requests the opposite one.
func (s *Shell) Toggle(ctx context.Context) State {
	switch s.Status(ctx) {
	case On:
		if s.Off(ctx) {
			return Off
		}
	case Off:
		if s.On(ctx) {
			return On
		}
	}
	return Unsure
}

// Wait polls check_on until it succeeds, or sleeps the settle delay.
func (s *Shell) Wait(ctx context.Context) error {
	if s.CheckOnCmd == "" {
		return clock.Sleep(ctx, s.Clock, s.Settle)
	}
	for {
		if _, err := s.run(ctx, s.CheckOnCmd); err == nil {
			return nil
		}
		if err := clock.Sleep(ctx, s.Clock, s.Poll); err != nil {
			return fmt.Errorf("power: wait for target: %w", err)
		}
	}
}

// Command runs args directly, without the interpreter.
func (s *Shell) Command(ctx context.Context, args []string) bool {
	if len(args) == 0 {
		return false
	}
	return exec.CommandContext(ctx, args[0], args[1:]...).Run() == nil
}

func (s *Shell) run(ctx context.Context, cmdline string) (string, error) {
	out, err := exec.CommandContext(ctx, s.Interp, "-c", cmdline).CombinedOutput()
	return string(out), err
}

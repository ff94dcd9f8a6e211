package usb

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/zulandar/benchyard/internal/power"
)

// Shell switches a port with commands such as uhubctl.
//
// Settings: on, off (required), status (prints ON or OFF), probe, shell.
type Shell struct {
	OnCmd     string
	OffCmd    string
	StatusCmd string
	ProbeCmd  string
	Interp    string
}

// Configure validates and applies settings.
func (s *Shell) Configure(settings map[string]string) error {
	var missing []string
	if s.OnCmd = settings["on"]; s.OnCmd == "" {
		missing = append(missing, "on")
	}
	if s.OffCmd = settings["off"]; s.OffCmd == "" {
		missing = append(missing, "off")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: shell: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	s.StatusCmd = settings["status"]
	s.ProbeCmd = settings["probe"]
	if s.Interp = settings["shell"]; s.Interp == "" {
		s.Interp = "/bin/sh"
	}
	return nil
}

// Probe runs the probe command when one is configured.
func (s *Shell) Probe(ctx context.Context) error {
	if s.ProbeCmd == "" {
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

// Status parses the first word printed by the status command.
func (s *Shell) Status(ctx context.Context) power.State {
	if s.StatusCmd == "" {
		return power.Unsure
	}
	out, err := s.run(ctx, s.StatusCmd)
	if err != nil {
		return power.Unsure
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return power.Unsure
	}
	return power.ParseState(strings.ToUpper(fields[0]))
}

func (s *Shell) run(ctx context.Context, cmdline string) (string, error) {
	out, err := exec.CommandContext(ctx, s.Interp, "-c", cmdline).CombinedOutput()
	return string(out), err
}

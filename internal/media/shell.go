package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Shell switches the mux through operator-supplied commands and writes
// images to a block device path on the host.
//
// Settings:
//
//	to_host    command attaching the card to the host (required)
//	to_target  command attaching the card to the target (required)
//	status     command printing HOST or TARGET (optional)
//	device     block device (or file) images are written to (optional)
//	probe      command exiting 0 when the mux is reachable (optional)
//	shell      interpreter, default /bin/sh
type Shell struct {
	ToHostCmd   string
	ToTargetCmd string
	StatusCmd   string
	ProbeCmd    string
	Device      string
	Interp      string
}

// Configure validates and applies settings.
func (s *Shell) Configure(settings map[string]string) error {
	var missing []string
	if s.ToHostCmd = settings["to_host"]; s.ToHostCmd == "" {
		missing = append(missing, "to_host")
	}
	if s.ToTargetCmd = settings["to_target"]; s.ToTargetCmd == "" {
		missing = append(missing, "to_target")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: shell: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	s.StatusCmd = settings["status"]
	s.ProbeCmd = settings["probe"]
	s.Device = settings["device"]
	if s.Interp = settings["shell"]; s.Interp == "" {
		s.Interp = "/bin/sh"
	}
	return nil
}

// Probe runs the probe command, or checks the device path exists.
func (s *Shell) Probe(ctx context.Context) error {
	if s.ProbeCmd != "" {
		if out, err := s.run(ctx, s.ProbeCmd); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, strings.TrimSpace(out), err)
		}
		return nil
	}
	if s.Device != "" {
		if _, err := os.Stat(s.Device); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// ToHost runs the to_host command.
func (s *Shell) ToHost(ctx context.Context) bool {
	_, err := s.run(ctx, s.ToHostCmd)
	return err == nil
}

// ToTarget runs the to_target command.
func (s *Shell) ToTarget(ctx context.Context) bool {
	_, err := s.run(ctx, s.ToTargetCmd)
	return err == nil
}

// Status runs the status command and parses the first word of its output.
func (s *Shell) Status(ctx context.Context) Location {
	if s.StatusCmd == "" {
		return Unknown
	}
	out, err := s.run(ctx, s.StatusCmd)
	if err != nil {
		return Unknown
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return Unknown
	}
	switch loc := Location(strings.ToUpper(fields[0])); loc {
	case Host, Target:
		return loc
	}
	return Unknown
}

// Open opens the configured device for writing.
func (s *Shell) Open(ctx context.Context) (io.WriteCloser, error) {
	if s.Device == "" {
		return nil, fmt.Errorf("%w: shell: no device configured", ErrConfiguration)
	}
	if loc := s.Status(ctx); loc == Target {
		return nil, ErrNotOnHost
	}
	f, err := os.OpenFile(s.Device, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return nil, fmt.Errorf("media: open %s: %w", s.Device, err)
	}
	return &syncCloser{f}, nil
}

func (s *Shell) run(ctx context.Context, cmdline string) (string, error) {
	out, err := exec.CommandContext(ctx, s.Interp, "-c", cmdline).CombinedOutput()
	return string(out), err
}

// syncCloser flushes the device before closing so the card is safe to
// hand back to the target.
type syncCloser struct{ f *os.File }

func (s *syncCloser) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *syncCloser) Close() error {
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return fmt.Errorf("media: sync %s: %w", s.f.Name(), err)
	}
	return s.f.Close()
}

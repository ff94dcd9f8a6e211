package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/clock"
	"github.com/zulandar/benchyard/internal/logging"
)

// Runtime names the software found running on the target.
type Runtime string

// Known runtimes.
const (
	RuntimeLinux   Runtime = "Linux"
	RuntimeUnknown Runtime = "???"
)

// Synchronizer defaults. The retry budget and delay are part of the
// console contract; callers count attempts.
const (
	DefaultRetries        = 3
	DefaultDelay          = time.Second
	DefaultInterrupt      = "\x03\n"
	DefaultLoginMarker    = "login: "
	DefaultCredential     = "root\n"
	DefaultShellPrompt    = "# "
	DefaultVersionCommand = "cat /proc/version\n"
	DefaultLinuxPrefix    = "Linux "
)

// Synchronizer proves a console is alive, logs in and identifies the
// running system. Every check makes at most Retries attempts and waits
// Delay after each send.
type Synchronizer struct {
	Channel        Channel
	Clock          clock.Clock
	Retries        int
	Delay          time.Duration
	Interrupt      string
	LoginMarker    string
	Credential     string
	ShellPrompt    string
	VersionCommand string
	LinuxPrefix    string
	Log            zerolog.Logger
}

// NewSynchronizer returns a Synchronizer with the default budget and
// markers.
func NewSynchronizer(ch Channel, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		Channel:        ch,
		Clock:          clock.Real(),
		Retries:        DefaultRetries,
		Delay:          DefaultDelay,
		Interrupt:      DefaultInterrupt,
		LoginMarker:    DefaultLoginMarker,
		Credential:     DefaultCredential,
		ShellPrompt:    DefaultShellPrompt,
		VersionCommand: DefaultVersionCommand,
		LinuxPrefix:    DefaultLinuxPrefix,
		Log:            log,
	}
}

// Check clears the console, sends an interrupt and succeeds as soon as
// any line comes back.
func (s *Synchronizer) Check(ctx context.Context) error {
	for attempt := 1; attempt <= s.Retries; attempt++ {
		s.Channel.Clear()
		if err := s.sendAndWait(ctx, s.Interrupt); err != nil {
			return err
		}
		if line, ok := s.Channel.Tail(); ok {
			s.Log.Debug().Int("attempt", attempt).Str("tail", logging.Printable(line)).Msg("console alive")
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrConsoleUnreachable, s.Retries)
}

// Login checks liveness, answers a login prompt with the credential if
// one is showing, then confirms the shell prompt.
func (s *Synchronizer) Login(ctx context.Context) error {
	if err := s.Check(ctx); err != nil {
		return err
	}
	if err := s.sendAndWait(ctx, s.Interrupt); err != nil {
		return err
	}
	if line, ok := s.Channel.Tail(); ok && strings.HasSuffix(line, s.LoginMarker) {
		s.Log.Debug().Msg("login prompt, sending credential")
		if err := s.sendAndWait(ctx, s.Credential); err != nil {
			return err
		}
	}
	return s.Prompt(ctx)
}

// Prompt installs the shell prompt on the channel and waits for it to
// end the tail line after an interrupt.
func (s *Synchronizer) Prompt(ctx context.Context) error {
	s.Channel.Prompt(s.ShellPrompt)
	for attempt := 1; attempt <= s.Retries; attempt++ {
		s.Channel.Clear()
		if err := s.sendAndWait(ctx, s.Interrupt); err != nil {
			return err
		}
		if line, ok := s.Channel.Tail(); ok && strings.HasSuffix(line, s.ShellPrompt) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q after %d attempts", ErrPromptNotFound, s.ShellPrompt, s.Retries)
}

// DetectRuntime runs the version command and classifies the first line
// after its echo.
func (s *Synchronizer) DetectRuntime(ctx context.Context) (Runtime, error) {
	s.Channel.Clear()
	if err := s.sendAndWait(ctx, s.VersionCommand); err != nil {
		return RuntimeUnknown, err
	}
	s.Channel.Head()
	line, ok := s.Channel.Head()
	if ok && strings.HasPrefix(line, s.LinuxPrefix) {
		return RuntimeLinux, nil
	}
	return RuntimeUnknown, fmt.Errorf("%w: %q", ErrUnknownRuntime, logging.Printable(line))
}

// sendAndWait sends text and sleeps the post-send delay. A failed send
// still counts as an attempt; only cancellation aborts.
func (s *Synchronizer) sendAndWait(ctx context.Context, text string) error {
	if err := s.Channel.Send(ctx, text); err != nil {
		s.Log.Warn().Err(err).Str("text", logging.Printable(text)).Msg("console send failed")
	}
	return clock.Sleep(ctx, s.clock(), s.Delay)
}

func (s *Synchronizer) clock() clock.Clock {
	if s.Clock == nil {
		return clock.Real()
	}
	return s.Clock
}

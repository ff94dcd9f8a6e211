//go:build !unittest

package console

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// RealTmux is the production implementation that calls the real tmux binary.
type RealTmux struct{}

func (RealTmux) SessionExists(name string) bool {
	return exec.Command("tmux", "has-session", "-t", name).Run() == nil
}

func (RealTmux) CreateSession(name string, command []string) error {
	args := append([]string{"new-session", "-d", "-s", name, "-x", "200", "-y", "50"}, command...)
	cmd := exec.Command("tmux", args...)
	// Unset TMUX so this works when invoked from inside an existing tmux session.
	cmd.Env = envWithoutTMUX()
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("create tmux session %q: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// envWithoutTMUX returns the current environment with the TMUX variable removed.
func envWithoutTMUX() []string {
	var env []string
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, "TMUX=") {
			env = append(env, e)
		}
	}
	return env
}

func (RealTmux) PipePane(target, shellCommand string) error {
	cmd := exec.Command("tmux", "pipe-pane", "-o", "-t", target, shellCommand)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pipe pane %q: %s: %w", target, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (RealTmux) SendLiteral(target, text string) error {
	cmd := exec.Command("tmux", "send-keys", "-t", target, "-l", text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("send text to %q: %s: %w", target, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (RealTmux) SendKeys(target string, keys ...string) error {
	args := append([]string{"send-keys", "-t", target}, keys...)
	if out, err := exec.Command("tmux", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("send keys to %q: %s: %w", target, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (RealTmux) KillSession(name string) error {
	cmd := exec.Command("tmux", "kill-session", "-t", name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("kill tmux session %q: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

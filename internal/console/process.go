package console

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// startProcess runs command (a serial client such as picocom) with its
// output captured into buf and buf's input wired to its stdin.
func startProcess(command []string, buf *Buffer) (func() error, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("console: process: command is required")
	}
	cmd := exec.Command(command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("console: process: stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("console: process: stdout: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("console: process: start %s: %w", strings.Join(command, " "), err)
	}
	buf.SetOutput(stdin)

	done := make(chan error, 1)
	go func() {
		io.Copy(buf, stdout)
		done <- cmd.Wait()
	}()

	return func() error {
		stdin.Close()
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-done
		return nil
	}, nil
}

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/benchyard/internal/console"
	"golang.org/x/term"
)

// detachKey ends an attach session (Ctrl-]).
const detachKey = 0x1d

func newConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Target serial console commands",
	}

	cmd.AddCommand(newConsoleCheckCmd())
	cmd.AddCommand(newConsoleLoginCmd())
	cmd.AddCommand(newConsoleRunCmd())
	cmd.AddCommand(newConsoleTailCmd())
	cmd.AddCommand(newConsoleDumpCmd())
	cmd.AddCommand(newConsoleAttachCmd())
	return cmd
}

// consoleEnv opens an env with the console backend running and refuses
// configs without one.
func consoleEnv(ctx context.Context, cmd *cobra.Command, flags *commonFlags) (*env, error) {
	e, err := openEnv(ctx, cmd, flags, true)
	if err != nil {
		return nil, err
	}
	if e.console == nil {
		e.close()
		return nil, fmt.Errorf("no console configured in %s: %w", flags.configPath, console.ErrNotConnected)
	}
	return e, nil
}

func newConsoleCheckCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the target console answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := consoleEnv(ctx, cmd, &flags)
			if err != nil {
				return err
			}
			defer e.close()

			sync := console.NewSynchronizer(e.agent.Client(e.session), e.log)
			if err := sync.Check(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Console is alive")
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newConsoleLoginCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in on the console and identify the running system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := consoleEnv(ctx, cmd, &flags)
			if err != nil {
				return err
			}
			defer e.close()

			sync := console.NewSynchronizer(e.agent.Client(e.session), e.log)
			if err := sync.Login(ctx); err != nil {
				return err
			}
			rt, err := sync.DetectRuntime(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in, runtime %s\n", rt)
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newConsoleRunCmd() *cobra.Command {
	var (
		flags   commonFlags
		noLogin bool
	)

	cmd := &cobra.Command{
		Use:   "run <command...>",
		Short: "Run a shell command on the target and print its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := consoleEnv(ctx, cmd, &flags)
			if err != nil {
				return err
			}
			defer e.close()

			if !noLogin {
				if err := console.NewSynchronizer(e.agent.Client(e.session), e.log).Login(ctx); err != nil {
					return err
				}
			}
			transcript, err := e.agent.ConsoleRun(ctx, e.session, strings.Join(args, " "))
			if err != nil {
				return err
			}
			for _, line := range console.Output(transcript) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVar(&noLogin, "no-login", false, "assume a shell prompt is already showing")
	return cmd
}

func newConsoleTailCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the last console line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := consoleEnv(ctx, cmd, &flags)
			if err != nil {
				return err
			}
			defer e.close()

			line, ok := e.agent.ConsoleTail(e.session)
			if !ok {
				return errors.New("console is empty")
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newConsoleDumpCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print all buffered console output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := consoleEnv(ctx, cmd, &flags)
			if err != nil {
				return err
			}
			defer e.close()

			fmt.Fprint(cmd.OutOrStdout(), e.agent.ConsoleDump(e.session))
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newConsoleAttachCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach the terminal to the target console",
		Long:  "Mirrors console output to the terminal and forwards keystrokes to the target. Press Ctrl-] to detach.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
			defer stop()
			e, err := consoleEnv(ctx, cmd, &flags)
			if err != nil {
				return err
			}
			defer e.close()

			return attach(ctx, e.console, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags.bind(cmd)
	return cmd
}

// attach forwards in to the console until the detach key, EOF or ctx is
// done. A terminal on in is put in raw mode for the duration.
func attach(ctx context.Context, c *console.Console, in io.Reader, out io.Writer) error {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer term.Restore(int(f.Fd()), state)
	}
	fmt.Fprint(out, "Attached, Ctrl-] to detach\r\n")
	c.SetMirror(out)
	defer c.SetMirror(nil)

	keys := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				keys <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case p := <-keys:
			if i := bytes.IndexByte(p, detachKey); i >= 0 {
				if i > 0 {
					if err := c.Send(ctx, string(p[:i])); err != nil {
						return err
					}
				}
				fmt.Fprint(out, "\r\nDetached\r\n")
				return nil
			}
			if err := c.Send(ctx, string(p)); err != nil {
				return err
			}
		}
	}
}

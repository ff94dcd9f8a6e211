package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/benchyard/internal/agent"
	"github.com/zulandar/benchyard/internal/power"
	"github.com/zulandar/benchyard/internal/sequencer"
)

func newTargetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Target power and lock commands",
	}

	cmd.AddCommand(newTargetPowerCmd("on"))
	cmd.AddCommand(newTargetPowerCmd("off"))
	cmd.AddCommand(newTargetStatusCmd())
	cmd.AddCommand(newTargetToggleCmd())
	cmd.AddCommand(newTargetLockCmd())
	cmd.AddCommand(newTargetUnlockCmd())
	cmd.AddCommand(newTargetWaitCmd())
	return cmd
}

func newTargetPowerCmd(action string) *cobra.Command {
	var (
		flags  commonFlags
		raw    bool
		settle time.Duration
	)

	long := "Powers the target on after handing the SD card to it."
	if action == "off" {
		long = "Powers the target off and hands the SD card back to the host."
	}
	cmd := &cobra.Command{
		Use:   action,
		Short: "Power the target " + action,
		Long:  long + " With --raw only the power backend is switched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTargetPower(cmd, &flags, action, raw, settle)
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVar(&raw, "raw", false, "switch power only, leave the SD card alone")
	cmd.Flags().DurationVar(&settle, "settle", sequencer.DefaultSettle, "delay between storage and power steps")
	return cmd
}

func runTargetPower(cmd *cobra.Command, flags *commonFlags, action string, raw bool, settle time.Duration) error {
	ctx := context.Background()
	e, err := openEnv(ctx, cmd, flags, false)
	if err != nil {
		return err
	}
	defer e.close()
	out := cmd.OutOrStdout()

	if raw {
		var ok bool
		if action == "on" {
			ok = e.agent.TargetOn(ctx, e.session)
		} else {
			ok = e.agent.TargetOff(ctx, e.session)
		}
		if !ok {
			return fmt.Errorf("target %s failed (status %s)", action, e.agent.TargetStatus(ctx, e.session))
		}
		fmt.Fprintf(out, "Target %s\n", e.agent.TargetStatus(ctx, e.session))
		return nil
	}

	seq := sequencer.New(e.agent.Client(e.session), e.log)
	seq.Settle = settle
	if action == "on" {
		err = seq.TargetOn(ctx)
	} else {
		err = seq.TargetOff(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Target %s, storage on %s\n",
		e.agent.TargetStatus(ctx, e.session), e.agent.StorageStatus(ctx, e.session).Location)
	return nil
}

func newTargetStatusCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show target power state and lock owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, cmd, &flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			owner, err := e.agent.TargetOwner(ctx)
			if err != nil {
				return err
			}
			if owner == "" {
				owner = "-"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Board:   %s\n", e.agent.Board)
			fmt.Fprintf(out, "Power:   %s\n", e.agent.TargetStatus(ctx, e.session))
			fmt.Fprintf(out, "Storage: %s\n", e.agent.StorageStatus(ctx, e.session).Location)
			fmt.Fprintf(out, "Owner:   %s\n", owner)
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newTargetToggleCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Flip target power",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, cmd, &flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			st := e.agent.TargetToggle(ctx, e.session)
			if st == power.Locked {
				return agent.ErrLocked
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Target %s\n", st)
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newTargetLockCmd() *cobra.Command {
	var (
		flags   commonFlags
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Take the board for this session",
		Long:  "Takes the board lock for the session. The lock lapses when the session stays silent for the configured lock expiry.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, cmd, &flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			tok, err := e.agent.TargetLock(ctx, e.session, timeout)
			if err != nil {
				owner, _ := e.agent.TargetOwner(ctx)
				return fmt.Errorf("board held by %s: %w", owner, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Board %s locked by %s\n", e.agent.Board, tok.Owner)
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait for the lock")
	return cmd
}

func newTargetUnlockCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Release the board lock held by this session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, cmd, &flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			released, err := e.agent.TargetUnlock(ctx, e.session)
			if err != nil {
				return err
			}
			if !released {
				fmt.Fprintf(cmd.OutOrStdout(), "Board %s was not locked by %s\n", e.agent.Board, e.session)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Board %s unlocked\n", e.agent.Board)
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newTargetWaitCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until the power backend reports the target up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, cmd, &flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.agent.TargetWait(ctx, e.session); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("target not up after %s", e.agent.WaitTimeout)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Target is up")
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

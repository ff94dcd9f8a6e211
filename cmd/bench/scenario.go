package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/benchyard/internal/scenario"
	"github.com/zulandar/benchyard/internal/sequencer"
	"github.com/zulandar/benchyard/internal/steps"
)

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Behavior scenario commands",
	}

	cmd.AddCommand(newScenarioRunCmd())
	cmd.AddCommand(newScenarioStepsCmd())
	cmd.AddCommand(newScenarioHistoryCmd())
	return cmd
}

func newScenarioRunCmd() *cobra.Command {
	var (
		flags    commonFlags
		settle   time.Duration
		lockWait time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <feature-file...>",
		Short: "Run feature files against the board",
		Long:  "Runs every scenario of the given feature files with the board step library. The board stays locked for the whole run. Results are stored in the history database. Exits non-zero if any scenario failed.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, &flags, args, settle, lockWait)
		},
	}

	flags.bind(cmd)
	cmd.Flags().DurationVar(&settle, "settle", sequencer.DefaultSettle, "delay between storage and power steps")
	cmd.Flags().DurationVar(&lockWait, "lock-timeout", sequencer.DefaultLockTimeout, "how long to wait for the board")
	return cmd
}

func runScenarios(cmd *cobra.Command, flags *commonFlags, paths []string, settle, lockWait time.Duration) error {
	// Parse everything first so a typo does not leave a half-run board.
	var features []*scenario.Feature
	for _, p := range paths {
		feat, err := scenario.ParseFile(p)
		if err != nil {
			return err
		}
		features = append(features, feat)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	e, err := openEnv(ctx, cmd, flags, true)
	if err != nil {
		return err
	}
	defer e.close()

	release, err := e.agent.TargetHold(ctx, e.session, lockWait, e.cfg.Lock.Heartbeat)
	if err != nil {
		owner, _ := e.agent.TargetOwner(ctx)
		return fmt.Errorf("board held by %s: %w", owner, err)
	}
	defer release()

	lib := steps.New(e.agent.Client(e.session), e.cfg, e.log)
	lib.Sequencer.Settle = settle
	reg := scenario.NewRegistry[steps.Session]()
	lib.Register(reg)
	runner := &scenario.Runner[steps.Session]{
		Registry: reg,
		NewState: lib.NewSession,
		Recorder: &scenario.Store{DB: e.db, Board: e.cfg.Board},
		Log:      e.log,
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, feat := range features {
		res := runner.Run(ctx, feat)
		printFeatureResult(out, res)
		if res.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d features failed", failed, len(features))
	}
	return nil
}

func printFeatureResult(w io.Writer, res scenario.FeatureResult) {
	fmt.Fprintf(w, "Feature: %s\n", res.Name)
	for _, s := range res.Scenarios {
		fmt.Fprintf(w, "  Scenario: %s [%s] (%s)\n", s.Name, s.Status, s.Duration.Round(time.Millisecond))
		for _, st := range s.Steps {
			fmt.Fprintf(w, "    %-8s %s", st.Result.Status, st.Step)
			if st.Result.Reason != "" {
				fmt.Fprintf(w, ": %s", st.Result.Reason)
			}
			fmt.Fprintln(w)
		}
	}
	c := res.Counts()
	fmt.Fprintf(w, "%d passed, %d failed, %d pending, %d skipped\n",
		c[scenario.StatusPassed], c[scenario.StatusFailed], c[scenario.StatusPending], c[scenario.StatusSkipped])
}

func newScenarioStepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "List the step patterns scenarios can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := scenario.NewRegistry[steps.Session]()
			(&steps.Library{}).Register(reg)
			for _, p := range reg.Patterns() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	return cmd
}

func newScenarioHistoryCmd() *cobra.Command {
	var (
		flags commonFlags
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent scenario runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, cmd, &flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			store := &scenario.Store{DB: e.db, Board: e.cfg.Board}
			runs, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No scenario runs recorded.")
				return nil
			}
			fmt.Fprintf(out, "%-20s %-8s %-30s %s\n", "STARTED", "STATUS", "FEATURE", "SCENARIO")
			for _, r := range runs {
				fmt.Fprintf(out, "%-20s %-8s %-30s %s\n",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, truncate(r.Feature, 30), r.Scenario)
			}
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

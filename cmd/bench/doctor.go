package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/benchyard/internal/probe"
)

func newDoctorCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and backend reachability",
		Long:  "Loads the config, opens the database and probes every configured backend once. Results are recorded like scheduled probes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, &flags)
		},
	}

	flags.bind(cmd)
	return cmd
}

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN"
	detail string
}

func runDoctor(cmd *cobra.Command, flags *commonFlags) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Benchyard Doctor")
	fmt.Fprintln(out, "================")

	ctx := context.Background()
	e, err := openEnv(ctx, cmd, flags, false)
	if err != nil {
		printCheckResult(out, checkResult{"Config and database", "FAIL", err.Error()})
		return fmt.Errorf("1 check(s) failed")
	}
	defer e.close()

	results := []checkResult{{"Config and database", "PASS", flags.configPath}}
	if e.cfg.Console.Variant == "" {
		results = append(results, checkResult{"console", "WARN", "not configured"})
	}

	p := &probe.Prober{DB: e.db, Board: e.cfg.Board, Components: probe.Components(e.agent), Log: e.log}
	probes, err := p.RunOnce(ctx)
	if err != nil {
		results = append(results, checkResult{"Probe history", "WARN", err.Error()})
	}
	for _, r := range probes {
		status := "PASS"
		if !r.OK {
			status = "FAIL"
		}
		results = append(results, checkResult{r.Component, status, r.Detail})
	}

	passed, failed, warned := 0, 0, 0
	for _, r := range results {
		printCheckResult(out, r)
		switch r.status {
		case "PASS":
			passed++
		case "FAIL":
			failed++
		case "WARN":
			warned++
		}
	}

	fmt.Fprintf(out, "\n%d passed, %d failed, %d warning\n", passed, failed, warned)

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func printCheckResult(out io.Writer, r checkResult) {
	fmt.Fprintf(out, "[%s] %s: %s\n", r.status, r.name, r.detail)
}

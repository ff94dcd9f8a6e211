package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/benchyard/internal/api"
	"github.com/zulandar/benchyard/internal/db"
	"github.com/zulandar/benchyard/internal/probe"
)

func newServeCmd() *cobra.Command {
	var (
		flags commonFlags
		port  int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the board agent with its HTTP API",
		Long:  "Starts the console backend, serves the HTTP control API and runs the configured backend probes until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, &flags, port)
		},
	}

	flags.bind(cmd)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	return cmd
}

func runServe(cmd *cobra.Command, flags *commonFlags, port int) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	e, err := openEnv(ctx, cmd, flags, true)
	if err != nil {
		return err
	}
	defer e.close()

	if err := db.SeedBoard(e.db, e.cfg); err != nil {
		return err
	}

	if sched := e.cfg.Probe.Schedule; sched != "" {
		p := &probe.Prober{
			DB:         e.db,
			Board:      e.cfg.Board,
			Components: probe.Components(e.agent),
			Log:        e.log,
		}
		stopProbe, err := p.Start(ctx, sched)
		if err != nil {
			return err
		}
		defer stopProbe()
		e.log.Info().Str("schedule", sched).Msg("probes scheduled")
	}

	if port == 0 {
		port = e.cfg.API.Port
	}
	return api.Start(ctx, api.StartOpts{
		Agent: e.agent,
		DB:    e.db,
		Port:  port,
		Out:   cmd.OutOrStdout(),
		Log:   e.log,
	})
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/user"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/benchyard/internal/agent"
	"github.com/zulandar/benchyard/internal/config"
	"github.com/zulandar/benchyard/internal/console"
	"github.com/zulandar/benchyard/internal/db"
	"github.com/zulandar/benchyard/internal/logging"
	"gorm.io/gorm"
)

// commonFlags are shared by every command that talks to the board.
type commonFlags struct {
	configPath string
	session    string
	logLevel   string
}

func (f *commonFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "benchyard.yaml", "path to Benchyard config file")
	cmd.Flags().StringVar(&f.session, "session", defaultSession(), "session name used for the board lock; set a unique BENCH_SESSION for parallel runs")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "override the configured log level")
}

// defaultSession is $BENCH_SESSION, or user@host so repeated CLI calls
// from one shell share the lock. Two runs with the same session re-enter
// the lock instead of excluding each other.
func defaultSession() string {
	if s := os.Getenv("BENCH_SESSION"); s != "" {
		return s
	}
	name := "bench"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	host, _ := os.Hostname()
	return name + "@" + host
}

// env is everything a command needs to drive the board.
type env struct {
	cfg     *config.Config
	db      *gorm.DB
	log     zerolog.Logger
	agent   *agent.Agent
	console *console.Console
	session string
}

// openEnv loads the config, connects and migrates the database and
// builds the agent. The console backend is only started when
// withConsole is set, since it may spawn a serial client.
func openEnv(ctx context.Context, cmd *cobra.Command, f *commonFlags, withConsole bool) (*env, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Log.Level
	if f.logLevel != "" {
		level = f.logLevel
	}
	log, err := logging.New(logging.Options{Level: level, Console: cfg.Log.Console, Out: cmd.ErrOrStderr(), Board: cfg.Board})
	if err != nil {
		return nil, err
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, db: gormDB, log: log, session: f.session}
	opts := agent.Options{DB: gormDB, Log: log}
	if withConsole && cfg.Console.Variant != "" {
		c, err := console.Open(ctx, cfg.Console, log)
		if err != nil {
			return nil, err
		}
		e.console = c
		opts.Console = c
	}
	a, err := agent.FromConfig(cfg, opts)
	if err != nil {
		e.close()
		return nil, err
	}
	e.agent = a
	return e, nil
}

func (e *env) close() {
	if e.console != nil {
		if err := e.console.Close(); err != nil {
			e.log.Warn().Err(err).Msg("close console")
		}
	}
	if sqlDB, err := e.db.DB(); err == nil {
		sqlDB.Close()
	}
}

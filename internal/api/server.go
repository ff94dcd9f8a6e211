// Package api serves the board's HTTP control API.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/agent"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Agent *agent.Agent
	DB    *gorm.DB
	Port  int
	Out   io.Writer
	Log   zerolog.Logger
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Agent == nil {
		return fmt.Errorf("api: agent is required")
	}
	if opts.Port <= 0 {
		opts.Port = 5556
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts.Agent, opts.DB, opts.Log),
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Board %s API listening on http://localhost:%d\n", opts.Agent.Board, opts.Port)
	}
	opts.Log.Info().Int("port", opts.Port).Msg("api started")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// NewRouter returns the gin engine serving a. db may be nil, in which
// case the history endpoints answer 503.
func NewRouter(a *agent.Agent, db *gorm.DB, log zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLog(log), sessionMiddleware())
	h := &handlers{agent: a, db: db, log: log}
	h.register(router)
	return router
}

// Package probe periodically checks that a board's backends answer and
// records each check as a ProbeResult row.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/agent"
	"github.com/zulandar/benchyard/internal/clock"
	"github.com/zulandar/benchyard/internal/models"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Component is one probed backend. Check returns a short detail on
// success.
type Component struct {
	Name  string
	Check func(ctx context.Context) (string, error)
}

// Components returns the probes for every backend a has configured.
func Components(a *agent.Agent) []Component {
	var out []Component
	if a.Power != nil {
		out = append(out, Component{Name: "power", Check: func(ctx context.Context) (string, error) {
			if err := a.Power.Probe(ctx); err != nil {
				return "", err
			}
			return string(a.Power.Status(ctx)), nil
		}})
	}
	if a.Mux != nil {
		out = append(out, Component{Name: "sdmux", Check: func(ctx context.Context) (string, error) {
			if err := a.Mux.Probe(ctx); err != nil {
				return "", err
			}
			return string(a.Mux.Status(ctx)), nil
		}})
	}
	if a.USB != nil && a.USB.Len() > 0 {
		out = append(out, Component{Name: "usb", Check: func(ctx context.Context) (string, error) {
			if err := a.USB.Probe(ctx); err != nil {
				return "", err
			}
			return fmt.Sprintf("%d ports", a.USB.Len()), nil
		}})
	}
	return out
}

// Prober runs the checks and stores their results.
type Prober struct {
	DB         *gorm.DB
	Board      string
	Components []Component
	// Timeout bounds each check.
	Timeout time.Duration
	Clock   clock.Clock
	Log     zerolog.Logger
}

// DefaultTimeout bounds a single check.
const DefaultTimeout = 30 * time.Second

// RunOnce checks every component in order and records the results.
func (p *Prober) RunOnce(ctx context.Context) ([]models.ProbeResult, error) {
	clk := p.Clock
	if clk == nil {
		clk = clock.Real()
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var results []models.ProbeResult
	for _, c := range p.Components {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		detail, err := c.Check(cctx)
		cancel()
		res := models.ProbeResult{Board: p.Board, Component: c.Name, OK: err == nil, Detail: detail, CreatedAt: clk.Now()}
		if err != nil {
			res.Detail = err.Error()
			p.Log.Warn().Err(err).Str("component", c.Name).Msg("probe failed")
		} else {
			p.Log.Debug().Str("component", c.Name).Str("detail", detail).Msg("probe ok")
		}
		results = append(results, res)
	}
	if p.DB != nil && len(results) > 0 {
		if err := p.DB.WithContext(ctx).Create(&results).Error; err != nil {
			return results, fmt.Errorf("probe: record results: %w", err)
		}
	}
	return results, nil
}

// Start runs RunOnce on schedule until ctx is done. The returned
// function stops the schedule and waits for a running probe to finish.
func (p *Prober) Start(ctx context.Context, schedule string) (func(), error) {
	c := cron.New(cron.WithParser(cronParser))
	_, err := c.AddFunc(schedule, func() {
		if _, err := p.RunOnce(ctx); err != nil {
			p.Log.Error().Err(err).Msg("probe run")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("probe: schedule %q: %w", schedule, err)
	}
	c.Start()
	p.Log.Info().Str("schedule", schedule).Int("components", len(p.Components)).Msg("probe scheduled")
	stop := func() { <-c.Stop().Done() }
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return stop, nil
}

// NextRun returns the time until schedule next fires after from.
func NextRun(schedule string, from time.Time) (time.Duration, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return 0, fmt.Errorf("probe: schedule %q: %w", schedule, err)
	}
	return sched.Next(from).Sub(from), nil
}

// Latest returns the most recent result of each component for board.
func Latest(ctx context.Context, db *gorm.DB, board string) ([]models.ProbeResult, error) {
	var results []models.ProbeResult
	sub := db.Model(&models.ProbeResult{}).Select("MAX(id)").Where("board = ?", board).Group("component")
	if err := db.WithContext(ctx).Where("id IN (?)", sub).Order("component").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("probe: latest results: %w", err)
	}
	return results, nil
}

package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/clock"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Step     Step
	Result   Result
	Duration time.Duration
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Feature   string
	Name      string
	Status    Status
	Steps     []StepResult
	StartedAt time.Time
	Duration  time.Duration
}

// FeatureResult collects the scenario results of one feature.
type FeatureResult struct {
	Name      string
	Scenarios []ScenarioResult
}

// Counts tallies scenarios by status.
func (r FeatureResult) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, s := range r.Scenarios {
		counts[s.Status]++
	}
	return counts
}

// Failed reports whether any scenario failed.
func (r FeatureResult) Failed() bool {
	return r.Counts()[StatusFailed] > 0
}

// Recorder persists scenario results.
type Recorder interface {
	Record(ctx context.Context, res *ScenarioResult) error
}

// Runner executes features against a registry.
type Runner[S any] struct {
	Registry *Registry[S]
	// NewState builds the per-scenario state.
	NewState func() *S
	// After runs when a scenario ends, whatever its outcome.
	After    func(ctx context.Context, sc *Context[S], res *ScenarioResult)
	Recorder Recorder
	Clock    clock.Clock
	Log      zerolog.Logger
}

// Run executes every scenario of feat in order. A failed or pending
// scenario does not stop the ones after it.
func (r *Runner[S]) Run(ctx context.Context, feat *Feature) FeatureResult {
	out := FeatureResult{Name: feat.Name}
	for _, s := range feat.Scenarios {
		res := r.RunScenario(ctx, feat, s)
		out.Scenarios = append(out.Scenarios, res)
		if r.Recorder != nil {
			if err := r.Recorder.Record(ctx, &res); err != nil {
				r.Log.Warn().Err(err).Str("scenario", s.Name).Msg("record scenario")
			}
		}
	}
	return out
}

// RunScenario runs the background steps then the steps of s. Once a
// step fails or is pending the remaining steps are skipped.
func (r *Runner[S]) RunScenario(ctx context.Context, feat *Feature, s Scenario) ScenarioResult {
	clk := r.Clock
	if clk == nil {
		clk = clock.Real()
	}
	var state *S
	if r.NewState != nil {
		state = r.NewState()
	} else {
		state = new(S)
	}
	log := r.Log.With().Str("scenario", s.Name).Logger()
	sc := NewContext(r.Registry, state, log)
	sc.Scenario = s.Name

	res := ScenarioResult{Feature: feat.Name, Name: s.Name, Status: StatusPassed, StartedAt: clk.Now()}
	steps := append(append([]Step(nil), feat.Background...), s.Steps...)
	for _, st := range steps {
		if res.Status != StatusPassed {
			res.Steps = append(res.Steps, StepResult{Step: st, Result: Skipped()})
			continue
		}
		start := clk.Now()
		result := r.runStep(ctx, sc, st)
		res.Steps = append(res.Steps, StepResult{Step: st, Result: result, Duration: clk.Now().Sub(start)})
		if result.Status != StatusPassed {
			res.Status = result.Status
		}
		ev := log.Info()
		if result.Status == StatusFailed {
			ev = log.Error()
		}
		ev.Str("step", st.String()).Str("status", string(result.Status)).Str("reason", result.Reason).Msg("step")
	}
	res.Duration = clk.Now().Sub(res.StartedAt)
	if r.After != nil {
		r.After(ctx, sc, &res)
	}
	return res
}

func (r *Runner[S]) runStep(ctx context.Context, sc *Context[S], st Step) (res Result) {
	if err := ctx.Err(); err != nil {
		return Failed(err.Error())
	}
	def, args, err := r.Registry.Match(st.Keyword, st.Text)
	if err != nil {
		return Failed(err.Error())
	}
	defer func() {
		if p := recover(); p != nil {
			res = Failed(fmt.Sprintf("panic: %v", p))
		}
	}()
	return ResultOf(def.fn(ctx, sc, args))
}

package scenario

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Context is handed to every step of one scenario. State is created
// fresh per scenario and shared by its steps.
type Context[S any] struct {
	State    *S
	Scenario string
	Log      zerolog.Logger

	reg   *Registry[S]
	depth int
}

// maxBehaveDepth bounds behave-like recursion.
const maxBehaveDepth = 16

// NewContext returns a Context over state that resolves behave-like
// steps in reg.
func NewContext[S any](reg *Registry[S], state *S, log zerolog.Logger) *Context[S] {
	return &Context[S]{State: state, Log: log, reg: reg}
}

// BehaveLike runs the step whose text matches, regardless of its role,
// and returns its error unchanged so pending propagates.
func (c *Context[S]) BehaveLike(ctx context.Context, text string) error {
	if c.depth >= maxBehaveDepth {
		return fmt.Errorf("scenario: behave like %q: recursion too deep", text)
	}
	def, args, err := c.reg.Match(RoleAny, text)
	if err != nil {
		return err
	}
	c.Log.Debug().Str("step", text).Msg("behave like")
	c.depth++
	defer func() { c.depth-- }()
	return def.fn(ctx, c, args)
}

// Package clock provides an injectable time source so that the fixed
// settle delays and polling intervals used against hardware can be
// asserted in tests instead of slept through.
//
// Production code holds a Clock field set to Real(). Tests use Fake(),
// which never blocks: every Sleep or After advances the fake time by the
// requested duration and records it.
package clock

import (
	"context"
	"time"
)

// Clock abstracts the time operations used by the agent.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) Sleep(d time.Duration)                  { time.Sleep(d) }

// Sleep waits for d on c, returning early with ctx.Err() if ctx is
// cancelled first.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}

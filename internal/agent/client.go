package agent

import (
	"context"
	"time"

	"github.com/zulandar/benchyard/internal/lock"
	"github.com/zulandar/benchyard/internal/power"
)

// Client binds an Agent to one session. It satisfies the board and
// console interfaces used by the sequencer, the synchronizer and the
// step library.
type Client struct {
	agent   *Agent
	session string
}

// Client returns a view of a bound to session.
func (a *Agent) Client(session string) *Client {
	return &Client{agent: a, session: session}
}

// Session returns the bound session.
func (c *Client) Session() string { return c.session }

// Agent returns the underlying agent.
func (c *Client) Agent() *Agent { return c.agent }

func (c *Client) TargetLock(ctx context.Context, timeout time.Duration) (*lock.Token, error) {
	return c.agent.TargetLock(ctx, c.session, timeout)
}

func (c *Client) TargetUnlock(tok *lock.Token) error {
	return c.agent.Locker.Release(tok)
}

func (c *Client) TargetStatus(ctx context.Context) power.State {
	return c.agent.TargetStatus(ctx, c.session)
}

func (c *Client) TargetOn(ctx context.Context) bool { return c.agent.TargetOn(ctx, c.session) }

func (c *Client) TargetOff(ctx context.Context) bool { return c.agent.TargetOff(ctx, c.session) }

func (c *Client) StorageToTarget(ctx context.Context) bool {
	return c.agent.StorageToTarget(ctx, c.session)
}

func (c *Client) StorageToHost(ctx context.Context) bool {
	return c.agent.StorageToHost(ctx, c.session)
}

func (c *Client) StorageWriteImage(ctx context.Context, path string) error {
	return c.agent.StorageWriteImage(ctx, c.session, path)
}

func (c *Client) USBHasClass(class string) bool { return c.agent.USBHasClass(class) }

func (c *Client) USBOnByClass(ctx context.Context, class string) bool {
	return c.agent.USBOnByClass(ctx, c.session, class)
}

func (c *Client) USBOffByClass(ctx context.Context, class string) bool {
	return c.agent.USBOffByClass(ctx, c.session, class)
}

func (c *Client) Clear() { c.agent.ConsoleClear(c.session) }

func (c *Client) Send(ctx context.Context, text string) error {
	return c.agent.ConsoleSend(ctx, c.session, text)
}

func (c *Client) Tail() (string, bool) { return c.agent.ConsoleTail(c.session) }

func (c *Client) Head() (string, bool) { return c.agent.ConsoleHead(c.session) }

func (c *Client) Prompt(pattern string) { c.agent.ConsolePrompt(c.session, pattern) }

func (c *Client) Run(ctx context.Context, command string) (string, error) {
	return c.agent.ConsoleRun(ctx, c.session, command)
}

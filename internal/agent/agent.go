// Package agent is the session-aware front of a board. Every operation
// takes the caller's session; operations that change power or storage
// are refused while another session holds the board lock.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/config"
	"github.com/zulandar/benchyard/internal/console"
	"github.com/zulandar/benchyard/internal/lock"
	"github.com/zulandar/benchyard/internal/media"
	"github.com/zulandar/benchyard/internal/models"
	"github.com/zulandar/benchyard/internal/notify"
	"github.com/zulandar/benchyard/internal/power"
	"github.com/zulandar/benchyard/internal/usb"
	"gorm.io/gorm"
)

// DefaultWaitTimeout bounds Controller.Wait.
const DefaultWaitTimeout = 2 * time.Minute

var (
	// ErrLocked is returned when another session holds the board.
	ErrLocked = errors.New("agent: board locked by another session")

	// ErrNoStorage is returned when no SD mux is configured.
	ErrNoStorage = errors.New("agent: no shared storage configured")

	// ErrStorageLocked is returned when the storage may not move or be
	// written right now.
	ErrStorageLocked = errors.New("agent: shared storage is locked")
)

// pauser is implemented by console buffers that can stop capturing
// while the target is off.
type pauser interface {
	Pause()
	Resume()
}

// Agent controls one board.
type Agent struct {
	Board    string
	Power    power.Controller
	Mux      media.Mux
	Hotplug  bool
	USB      *usb.Hub
	Console  console.Channel
	Locker   *lock.Locker
	DB       *gorm.DB
	Monitors []notify.Monitor
	Scripts  config.ScriptsConfig
	Builds   map[string]string

	WaitTimeout time.Duration
	Log         zerolog.Logger

	mu      sync.Mutex
	writing bool
	written int64
}

// StorageStatus describes the shared storage.
type StorageStatus struct {
	Location media.Location `json:"location"`
	Writing  bool           `json:"writing"`
	Written  int64          `json:"written"`
}

// TargetLock takes the board for session, waiting up to timeout.
func (a *Agent) TargetLock(ctx context.Context, session string, timeout time.Duration) (*lock.Token, error) {
	tok, err := a.Locker.Acquire(ctx, session, timeout)
	if err != nil {
		return nil, err
	}
	a.Log.Debug().Str("session", session).Uint("lease", tok.ID).Bool("reentrant", tok.Reentrant).Msg("board locked")
	return tok, nil
}

// TargetHold takes the board for session and keeps the lease alive
// every heartbeat until the returned release function is called. A lost
// lease is logged; the caller keeps running.
func (a *Agent) TargetHold(ctx context.Context, session string, timeout, heartbeat time.Duration) (func(), error) {
	tok, err := a.TargetLock(ctx, session, timeout)
	if err != nil {
		return nil, err
	}
	hbCtx, cancel := context.WithCancel(ctx)
	errs := a.Locker.StartHeartbeat(hbCtx, tok, heartbeat)
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case err := <-errs:
			a.Log.Error().Err(err).Str("session", session).Msg("board lease lost")
		case <-hbCtx.Done():
		}
	}()
	return func() {
		cancel()
		<-done
		if err := a.Locker.Release(tok); err != nil {
			a.Log.Warn().Err(err).Msg("release board lock")
		}
	}, nil
}

// TargetUnlock frees the board if session holds it.
func (a *Agent) TargetUnlock(ctx context.Context, session string) (bool, error) {
	return a.Locker.Unlock(ctx, session)
}

// TargetOwner returns the session holding the board, "" when free.
func (a *Agent) TargetOwner(ctx context.Context) (string, error) {
	return a.Locker.Owner(ctx)
}

// PowerLocked reports whether another session holds the board. The
// caller's own lease is refreshed as a side effect.
func (a *Agent) PowerLocked(ctx context.Context, session string) bool {
	owner, err := a.Locker.Owner(ctx)
	if err != nil {
		a.Log.Warn().Err(err).Msg("read board owner")
		return true
	}
	if owner == "" {
		return false
	}
	if owner == session {
		if err := a.Locker.Touch(ctx, session); err != nil {
			a.Log.Warn().Err(err).Msg("refresh board lease")
		}
		return false
	}
	return true
}

// TargetStatus returns the power state, or LOCKED when another session
// holds the board.
func (a *Agent) TargetStatus(ctx context.Context, session string) power.State {
	if a.Power == nil {
		return power.Unsure
	}
	if a.PowerLocked(ctx, session) {
		return power.Locked
	}
	return a.Power.Status(ctx)
}

// TargetOn powers the target on. Console capture resumes first so the
// boot log is kept.
func (a *Agent) TargetOn(ctx context.Context, session string) bool {
	a.resumeConsole()
	if a.Power == nil || a.PowerLocked(ctx, session) {
		a.Log.Debug().Str("session", session).Msg("target on refused: locked")
		return false
	}
	ok := a.Power.On(ctx)
	a.recordPower(ctx, session, "on", ok)
	if ok {
		a.runScripts(ctx, session, a.Scripts.PowerOn)
		a.powerChanged(ctx, session, "on", power.On)
	}
	return ok
}

// TargetOff powers the target off and pauses console capture.
func (a *Agent) TargetOff(ctx context.Context, session string) bool {
	if a.Power == nil || a.PowerLocked(ctx, session) {
		a.Log.Debug().Str("session", session).Msg("target off refused: locked")
		return false
	}
	ok := a.Power.Off(ctx)
	a.recordPower(ctx, session, "off", ok)
	if ok {
		a.pauseConsole()
		a.runScripts(ctx, session, a.Scripts.PowerOff)
		a.powerChanged(ctx, session, "off", power.Off)
	}
	return ok
}

// TargetToggle flips power and returns the new state, LOCKED when
// another session holds the board.
func (a *Agent) TargetToggle(ctx context.Context, session string) power.State {
	if a.Power == nil {
		return power.Unsure
	}
	if a.PowerLocked(ctx, session) {
		return power.Locked
	}
	st := a.Power.Toggle(ctx)
	a.recordPower(ctx, session, "toggle", st.Known())
	switch st {
	case power.On:
		a.resumeConsole()
		a.runScripts(ctx, session, a.Scripts.PowerOn)
		a.powerChanged(ctx, session, "toggle", st)
	case power.Off:
		a.runScripts(ctx, session, a.Scripts.PowerOff)
		a.pauseConsole()
		a.powerChanged(ctx, session, "toggle", st)
	}
	return st
}

// TargetWait blocks until the power backend reports the target up,
// bounded by WaitTimeout.
func (a *Agent) TargetWait(ctx context.Context, session string) error {
	if a.Power == nil {
		return fmt.Errorf("agent: wait: %w", power.ErrUnavailable)
	}
	timeout := a.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.Power.Wait(ctx); err != nil {
		return fmt.Errorf("agent: wait: %w", err)
	}
	return nil
}

// TargetCommand passes args to the power backend.
func (a *Agent) TargetCommand(ctx context.Context, session string, args []string) bool {
	if a.Power == nil || a.PowerLocked(ctx, session) {
		return false
	}
	ok := a.Power.Command(ctx, args)
	a.recordPower(ctx, session, "command", ok)
	return ok
}

func (a *Agent) recordPower(ctx context.Context, session, action string, ok bool) {
	if a.DB == nil {
		return
	}
	ev := &models.PowerEvent{
		Board:   a.Board,
		Session: session,
		Action:  action,
		State:   string(a.Power.Status(ctx)),
		OK:      ok,
	}
	if err := a.DB.WithContext(ctx).Create(ev).Error; err != nil {
		a.Log.Warn().Err(err).Msg("record power event")
	}
}

func (a *Agent) powerChanged(ctx context.Context, session, action string, st power.State) {
	ev := notify.Event{Board: a.Board, Session: session, Action: action, State: st, At: time.Now()}
	for _, m := range a.Monitors {
		if err := m.PowerChanged(ctx, ev); err != nil {
			a.Log.Warn().Err(err).Str("monitor", m.Name()).Msg("power monitor")
		}
	}
}

// runScripts runs hook commands in order. Failures are logged and do not
// change the outcome of the power request.
func (a *Agent) runScripts(ctx context.Context, session string, scripts []string) {
	for _, script := range scripts {
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
		cmd.Env = append(os.Environ(), "BENCH_BOARD="+a.Board, "BENCH_SESSION="+session)
		if out, err := cmd.CombinedOutput(); err != nil {
			a.Log.Warn().Err(err).Str("script", script).Bytes("output", out).Msg("power script failed")
		}
	}
}

func (a *Agent) pauseConsole() {
	if p, ok := a.Console.(pauser); ok {
		p.Pause()
	}
}

func (a *Agent) resumeConsole() {
	if p, ok := a.Console.(pauser); ok {
		p.Resume()
	}
}

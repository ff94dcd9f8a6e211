// Package sequencer implements the compound target power transitions:
// powering on hands the SD card to the target first, powering off hands
// it back to the host afterwards. Both run under the board lock and are
// idempotent.
//
// The sequencer is fail-stop. When a step fails the transition stops
// where it is and nothing is rolled back; in particular a failed power-on
// leaves the card attached to the target.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/clock"
	"github.com/zulandar/benchyard/internal/lock"
	"github.com/zulandar/benchyard/internal/power"
)

// Defaults.
const (
	DefaultLockTimeout = 30 * time.Second
	DefaultSettle      = 3 * time.Second
)

var (
	// ErrMediaSwitch means the SD mux reported a failed handover.
	ErrMediaSwitch = errors.New("sequencer: storage switch failed")

	// ErrPowerCommand means the power backend rejected on or off.
	ErrPowerCommand = errors.New("sequencer: power command failed")

	// ErrIndeterminateState means power was neither ON nor OFF, so no
	// transition was attempted.
	ErrIndeterminateState = errors.New("sequencer: power state is indeterminate")
)

// Board is what the sequencer drives. Status and the storage moves are
// only called while the lock is held.
type Board interface {
	TargetLock(ctx context.Context, timeout time.Duration) (*lock.Token, error)
	TargetUnlock(tok *lock.Token) error
	TargetStatus(ctx context.Context) power.State
	TargetOn(ctx context.Context) bool
	TargetOff(ctx context.Context) bool
	StorageToTarget(ctx context.Context) bool
	StorageToHost(ctx context.Context) bool
}

// Sequencer runs TargetOn and TargetOff against a Board.
type Sequencer struct {
	Board       Board
	Clock       clock.Clock
	LockTimeout time.Duration
	Settle      time.Duration
	Log         zerolog.Logger
}

// New returns a Sequencer with the default lock timeout and settle delay.
func New(b Board, log zerolog.Logger) *Sequencer {
	return &Sequencer{
		Board:       b,
		Clock:       clock.Real(),
		LockTimeout: DefaultLockTimeout,
		Settle:      DefaultSettle,
		Log:         log,
	}
}

// TargetOn powers the target on with its storage attached. A target that
// is already on is left untouched.
func (s *Sequencer) TargetOn(ctx context.Context) error {
	tok, err := s.Board.TargetLock(ctx, s.LockTimeout)
	if err != nil {
		return fmt.Errorf("sequencer: target on: %w", err)
	}
	defer s.unlock(tok)

	switch st := s.Board.TargetStatus(ctx); st {
	case power.On:
		s.Log.Debug().Msg("target already on")
		return nil
	case power.Off:
	default:
		return fmt.Errorf("%w: %s", ErrIndeterminateState, st)
	}

	if !s.Board.StorageToTarget(ctx) {
		return fmt.Errorf("%w: to target", ErrMediaSwitch)
	}
	if err := clock.Sleep(ctx, s.clock(), s.Settle); err != nil {
		return fmt.Errorf("sequencer: target on: %w", err)
	}
	if !s.Board.TargetOn(ctx) {
		return fmt.Errorf("%w: on", ErrPowerCommand)
	}
	s.Log.Info().Msg("target powered on")
	return nil
}

// TargetOff powers the target off and returns its storage to the host.
// The storage is returned even when the target was already off.
func (s *Sequencer) TargetOff(ctx context.Context) error {
	tok, err := s.Board.TargetLock(ctx, s.LockTimeout)
	if err != nil {
		return fmt.Errorf("sequencer: target off: %w", err)
	}
	defer s.unlock(tok)

	switch st := s.Board.TargetStatus(ctx); st {
	case power.On:
		if !s.Board.TargetOff(ctx) {
			return fmt.Errorf("%w: off", ErrPowerCommand)
		}
		if err := clock.Sleep(ctx, s.clock(), s.Settle); err != nil {
			return fmt.Errorf("sequencer: target off: %w", err)
		}
		s.Log.Info().Msg("target powered off")
	case power.Off:
		s.Log.Debug().Msg("target already off")
	default:
		return fmt.Errorf("%w: %s", ErrIndeterminateState, st)
	}

	if !s.Board.StorageToHost(ctx) {
		return fmt.Errorf("%w: to host", ErrMediaSwitch)
	}
	return nil
}

func (s *Sequencer) unlock(tok *lock.Token) {
	if err := s.Board.TargetUnlock(tok); err != nil {
		s.Log.Warn().Err(err).Msg("release board lock")
	}
}

func (s *Sequencer) clock() clock.Clock {
	if s.Clock == nil {
		return clock.Real()
	}
	return s.Clock
}

// Package lock provides the board lock: a database-backed lease that
// gives one owner at a time exclusive use of the board's power and
// storage. A lease whose heartbeat is older than the expiry is reclaimed
// by the next caller.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/benchyard/internal/clock"
	"github.com/zulandar/benchyard/internal/models"
	"gorm.io/gorm"
)

// Defaults.
const (
	DefaultExpiry    = 5 * time.Minute
	DefaultPoll      = 500 * time.Millisecond
	DefaultHeartbeat = 30 * time.Second
)

var (
	// ErrLockTimeout is returned by Acquire when the board stayed held by
	// another owner for the whole timeout.
	ErrLockTimeout = errors.New("lock: timed out waiting for board")

	// ErrHeld is returned by TryAcquire when another owner holds the board.
	ErrHeld = errors.New("lock: board held by another owner")

	// ErrLeaseLost is returned by Heartbeat once the lease was released or
	// reclaimed.
	ErrLeaseLost = errors.New("lock: lease no longer active")
)

// Token is proof of ownership of the board. A token obtained by an
// owner that already held the board is Reentrant; releasing it leaves
// the outer lease in place.
type Token struct {
	ID         uint
	Board      string
	Owner      string
	AcquiredAt time.Time
	Reentrant  bool
}

// Opts configures a Locker.
type Opts struct {
	DB     *gorm.DB
	Board  string
	Expiry time.Duration
	Poll   time.Duration
	Clock  clock.Clock
}

// Locker arbitrates the lease of one board.
type Locker struct {
	db     *gorm.DB
	board  string
	expiry time.Duration
	poll   time.Duration
	clock  clock.Clock
}

// New returns a Locker for opts.Board, filling in defaults.
func New(opts Opts) *Locker {
	l := &Locker{
		db:     opts.DB,
		board:  opts.Board,
		expiry: opts.Expiry,
		poll:   opts.Poll,
		clock:  opts.Clock,
	}
	if l.expiry <= 0 {
		l.expiry = DefaultExpiry
	}
	if l.poll <= 0 {
		l.poll = DefaultPoll
	}
	if l.clock == nil {
		l.clock = clock.Real()
	}
	return l
}

// Board returns the board this locker guards.
func (l *Locker) Board() string { return l.board }

// TryAcquire makes a single attempt to take the board for owner. The
// current owner may acquire again; its lease is refreshed and the same
// token returned.
func (l *Locker) TryAcquire(ctx context.Context, owner string) (*Token, error) {
	if owner == "" {
		return nil, fmt.Errorf("lock: acquire: owner is required")
	}
	var tok *Token
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.clock.Now()
		if err := l.expire(tx, now); err != nil {
			return err
		}

		var existing models.BoardLease
		result := tx.Where("board = ? AND status = ?", l.board, models.LeaseActive).First(&existing)
		if result.Error == nil {
			if existing.Owner != owner {
				return fmt.Errorf("%w: %q holds %s", ErrHeld, existing.Owner, l.board)
			}
			if err := tx.Model(&existing).Update("last_heartbeat", now).Error; err != nil {
				return fmt.Errorf("refresh lease: %w", err)
			}
			tok = tokenFor(&existing)
			tok.Reentrant = true
			return nil
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check existing lease: %w", result.Error)
		}

		lease := &models.BoardLease{
			Board:         l.board,
			Owner:         owner,
			Status:        models.LeaseActive,
			LastHeartbeat: now,
			CreatedAt:     now,
		}
		if err := tx.Create(lease).Error; err != nil {
			return fmt.Errorf("create lease: %w", err)
		}
		tok = tokenFor(lease)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrHeld) {
			return nil, err
		}
		return nil, fmt.Errorf("lock: acquire: %w", err)
	}
	return tok, nil
}

// Acquire polls TryAcquire until it succeeds or timeout elapses. A zero
// timeout makes exactly one attempt.
func (l *Locker) Acquire(ctx context.Context, owner string, timeout time.Duration) (*Token, error) {
	deadline := l.clock.Now().Add(timeout)
	for {
		tok, err := l.TryAcquire(ctx, owner)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrHeld) {
			return nil, err
		}
		if !l.clock.Now().Before(deadline) {
			return nil, fmt.Errorf("%w after %s: %v", ErrLockTimeout, timeout, err)
		}
		if err := clock.Sleep(ctx, l.clock, l.poll); err != nil {
			return nil, fmt.Errorf("lock: acquire: %w", err)
		}
	}
}

// Release ends the lease held by tok. Releasing a nil or reentrant
// token, or one that is no longer active, is a no-op.
func (l *Locker) Release(tok *Token) error {
	if tok == nil || tok.Reentrant {
		return nil
	}
	result := l.db.Model(&models.BoardLease{}).
		Where("id = ? AND status = ?", tok.ID, models.LeaseActive).
		Updates(map[string]interface{}{
			"status":      models.LeaseReleased,
			"released_at": l.clock.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("lock: release: %w", result.Error)
	}
	return nil
}

// Unlock ends the active lease if owner holds it. It reports whether a
// lease was released.
func (l *Locker) Unlock(ctx context.Context, owner string) (bool, error) {
	result := l.db.WithContext(ctx).Model(&models.BoardLease{}).
		Where("board = ? AND owner = ? AND status = ?", l.board, owner, models.LeaseActive).
		Updates(map[string]interface{}{
			"status":      models.LeaseReleased,
			"released_at": l.clock.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("lock: unlock: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Owner returns the owner of the active lease, or "" when the board is
// free. Stale leases are expired first.
func (l *Locker) Owner(ctx context.Context) (string, error) {
	var owner string
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.expire(tx, l.clock.Now()); err != nil {
			return err
		}
		var lease models.BoardLease
		result := tx.Where("board = ? AND status = ?", l.board, models.LeaseActive).First(&lease)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil
		}
		if result.Error != nil {
			return result.Error
		}
		owner = lease.Owner
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("lock: owner: %w", err)
	}
	return owner, nil
}

// Touch refreshes owner's lease if owner holds the board. Any call made
// on behalf of a session counts as activity.
func (l *Locker) Touch(ctx context.Context, owner string) error {
	err := l.db.WithContext(ctx).Model(&models.BoardLease{}).
		Where("board = ? AND owner = ? AND status = ?", l.board, owner, models.LeaseActive).
		Update("last_heartbeat", l.clock.Now()).Error
	if err != nil {
		return fmt.Errorf("lock: touch: %w", err)
	}
	return nil
}

// Heartbeat refreshes the lease behind tok.
func (l *Locker) Heartbeat(tok *Token) error {
	result := l.db.Model(&models.BoardLease{}).
		Where("id = ? AND status = ?", tok.ID, models.LeaseActive).
		Update("last_heartbeat", l.clock.Now())
	if result.Error != nil {
		return fmt.Errorf("lock: heartbeat: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: lease %d", ErrLeaseLost, tok.ID)
	}
	return nil
}

// StartHeartbeat refreshes tok every interval until ctx is cancelled. The
// returned channel receives an error if the lease is lost or the update
// fails.
func (l *Locker) StartHeartbeat(ctx context.Context, tok *Token, interval time.Duration) <-chan error {
	if interval <= 0 {
		interval = DefaultHeartbeat
	}
	errCh := make(chan error, 1)
	go func() {
		for {
			if err := clock.Sleep(ctx, l.clock, interval); err != nil {
				return
			}
			if err := l.Heartbeat(tok); err != nil {
				errCh <- err
				return
			}
		}
	}()
	return errCh
}

func (l *Locker) expire(tx *gorm.DB, now time.Time) error {
	cutoff := now.Add(-l.expiry)
	err := tx.Model(&models.BoardLease{}).
		Where("board = ? AND status = ? AND last_heartbeat < ?", l.board, models.LeaseActive, cutoff).
		Updates(map[string]interface{}{
			"status":      models.LeaseExpired,
			"released_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("expire stale leases: %w", err)
	}
	return nil
}

func tokenFor(lease *models.BoardLease) *Token {
	return &Token{
		ID:         lease.ID,
		Board:      lease.Board,
		Owner:      lease.Owner,
		AcquiredAt: lease.CreatedAt,
	}
}

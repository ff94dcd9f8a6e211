package models

import "time"

// Lease statuses.
const (
	LeaseActive   = "active"
	LeaseReleased = "released"
	LeaseExpired  = "expired"
)

// BoardLease records one period of exclusive ownership of a board. At
// most one lease per board is active; a lease whose heartbeat is older
// than the lock expiry is marked expired by the next acquirer.
type BoardLease struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Board         string    `gorm:"size:64;not null;index:idx_board_status"`
	Owner         string    `gorm:"size:128;not null"`
	Status        string    `gorm:"size:16;default:active;index:idx_board_status"`
	LastHeartbeat time.Time `gorm:"index"`
	CreatedAt     time.Time
	ReleasedAt    *time.Time
}

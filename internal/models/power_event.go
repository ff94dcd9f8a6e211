package models

import "time"

// PowerEvent logs a power request made through the agent and what the
// backend reported.
type PowerEvent struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Board     string `gorm:"size:64;not null;index"`
	Session   string `gorm:"size:128"`
	Action    string `gorm:"size:16;not null"` // on, off, toggle, command
	State     string `gorm:"size:16"`          // ON, OFF, ???, LOCKED
	OK        bool
	CreatedAt time.Time `gorm:"index"`
}

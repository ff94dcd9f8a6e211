package models

import "time"

// ProbeResult is one scheduled reachability check of a backend.
type ProbeResult struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Board     string `gorm:"size:64;not null;index"`
	Component string `gorm:"size:32;not null"` // power, sdmux, console, usb
	OK        bool
	Detail    string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

package models

import "time"

// Board stores the identity and backend wiring of the board this agent
// controls, seeded from configuration at migration time.
type Board struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Name           string `gorm:"size:64;uniqueIndex"`
	PowerVariant   string `gorm:"size:32"`
	SDMuxVariant   string `gorm:"column:sdmux_variant;size:32"`
	ConsoleVariant string `gorm:"size:32"`
	USBPorts       int
	Settings       string `gorm:"type:json"`
	UpdatedAt      time.Time
}

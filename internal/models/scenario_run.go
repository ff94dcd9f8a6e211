package models

import "time"

// ScenarioRun records the outcome of one scenario execution.
type ScenarioRun struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Board      string `gorm:"size:64;index"`
	Feature    string `gorm:"size:255"`
	Scenario   string `gorm:"size:255;not null"`
	Status     string `gorm:"size:16;index"` // passed, failed, pending
	StartedAt  time.Time
	FinishedAt *time.Time

	Steps []StepRun `gorm:"foreignKey:ScenarioRunID"`
}

// StepRun records one step of a scenario run.
type StepRun struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	ScenarioRunID uint   `gorm:"not null;index"`
	Sequence      int    `gorm:"not null"`
	Text          string `gorm:"type:text;not null"`
	Status        string `gorm:"size:16"` // passed, failed, pending, skipped
	Reason        string `gorm:"type:text"`
	DurationMs    int64
}

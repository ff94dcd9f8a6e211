package db

import (
	"encoding/json"
	"fmt"

	"github.com/zulandar/benchyard/internal/config"
	"github.com/zulandar/benchyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Board{},
		&models.BoardLease{},
		&models.PowerEvent{},
		&models.ProbeResult{},
		&models.ScenarioRun{},
		&models.StepRun{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedBoard writes or updates the Board row for the configured board.
func SeedBoard(db *gorm.DB, cfg *config.Config) error {
	settings, err := marshalJSON(map[string]interface{}{
		"builds":  cfg.Builds,
		"kernel":  cfg.Kernel.Version,
		"hotplug": cfg.SDMux.Hotplug,
	})
	if err != nil {
		return fmt.Errorf("db: marshal settings for board %q: %w", cfg.Board, err)
	}

	board := models.Board{
		Name:           cfg.Board,
		PowerVariant:   cfg.Power.Variant,
		SDMuxVariant:   cfg.SDMux.Variant,
		ConsoleVariant: cfg.Console.Variant,
		USBPorts:       len(cfg.USB),
		Settings:       settings,
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"power_variant", "sdmux_variant", "console_variant", "usb_ports", "settings", "updated_at"}),
	}).Create(&board)
	if result.Error != nil {
		return fmt.Errorf("db: seed board %q: %w", cfg.Board, result.Error)
	}
	return nil
}

// marshalJSON marshals a value to a JSON string, returning empty string for nil.
func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

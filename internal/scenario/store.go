package scenario

import (
	"context"
	"fmt"

	"github.com/zulandar/benchyard/internal/models"
	"gorm.io/gorm"
)

// Store records scenario results as ScenarioRun and StepRun rows.
type Store struct {
	DB    *gorm.DB
	Board string
}

// Record writes res and its steps in one transaction.
func (s *Store) Record(ctx context.Context, res *ScenarioResult) error {
	finished := res.StartedAt.Add(res.Duration)
	run := models.ScenarioRun{
		Board:      s.Board,
		Feature:    res.Feature,
		Scenario:   res.Name,
		Status:     string(res.Status),
		StartedAt:  res.StartedAt,
		FinishedAt: &finished,
	}
	for i, st := range res.Steps {
		run.Steps = append(run.Steps, models.StepRun{
			Sequence:   i + 1,
			Text:       st.Step.String(),
			Status:     string(st.Result.Status),
			Reason:     st.Result.Reason,
			DurationMs: st.Duration.Milliseconds(),
		})
	}
	if err := s.DB.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("scenario: record %q: %w", res.Name, err)
	}
	return nil
}

// Recent returns the latest runs for the board, newest first, with
// their steps.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.ScenarioRun, error) {
	var runs []models.ScenarioRun
	q := s.DB.WithContext(ctx).Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence")
	}).Order("id DESC").Limit(limit)
	if s.Board != "" {
		q = q.Where("board = ?", s.Board)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("scenario: recent runs: %w", err)
	}
	return runs, nil
}

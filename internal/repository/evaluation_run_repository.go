package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gopherai-kbqa/internal/model"
)

type EvaluationRunRepository struct {
	db *gorm.DB
}

func NewEvaluationRunRepository(db *gorm.DB) *EvaluationRunRepository {
	return &EvaluationRunRepository{db: db}
}

func (r *EvaluationRunRepository) Create(ctx context.Context, run *model.EvaluationRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("create evaluation run failed: %w", err)
	}
	return nil
}

// Latest returns the most recent run, or nil when none exists.
func (r *EvaluationRunRepository) Latest(ctx context.Context) (*model.EvaluationRun, error) {
	var run model.EvaluationRun
	if err := r.db.WithContext(ctx).Order("created_at DESC").First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest evaluation run failed: %w", err)
	}
	return &run, nil
}

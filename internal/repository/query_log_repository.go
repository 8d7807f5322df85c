package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gopherai-kbqa/internal/model"
)

type QueryLogRepository struct {
	db *gorm.DB
}

func NewQueryLogRepository(db *gorm.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

// Create inserts the log once per event id; redelivered events are ignored.
func (r *QueryLogRepository) Create(ctx context.Context, log *model.QueryLog) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(log).Error
	if err != nil {
		return fmt.Errorf("create query log failed: %w", err)
	}
	return nil
}

func (r *QueryLogRepository) ListRecent(ctx context.Context, limit int) ([]model.QueryLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var logs []model.QueryLog
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list query logs failed: %w", err)
	}
	return logs, nil
}

type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}

// CountByOutcome groups queries created at or after since by outcome.
func (r *QueryLogRepository) CountByOutcome(ctx context.Context, since time.Time) ([]OutcomeCount, error) {
	var counts []OutcomeCount
	err := r.db.WithContext(ctx).Model(&model.QueryLog{}).
		Select("outcome, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("outcome").
		Order("outcome ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("count query logs failed: %w", err)
	}
	return counts, nil
}

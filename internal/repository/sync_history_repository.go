package repository

import (
	"context"
	"fmt"

	"github.com/vipul43/jobsync-worker/internal/models"
	"gorm.io/gorm"
)

const DefaultHistoryLimit = 50

type SyncHistoryRepository struct {
	db *gorm.DB
}

func NewSyncHistoryRepository(db *gorm.DB) *SyncHistoryRepository {
	return &SyncHistoryRepository{db: db}
}

// Create appends a history entry
func (r *SyncHistoryRepository) Create(ctx context.Context, entry models.SyncHistory) error {
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to create sync history: %w", err)
	}
	return nil
}

// ListByAccount retrieves the most recent entries for an account
func (r *SyncHistoryRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.SyncHistory, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var entries []models.SyncHistory
	result := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query sync history: %w", result.Error)
	}
	return entries, nil
}

// CountByAccount returns the number of history entries for an account
func (r *SyncHistoryRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.SyncHistory{}).
		Where("account_id = ?", accountID).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count sync history: %w", result.Error)
	}
	return count, nil
}

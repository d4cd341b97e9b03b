package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vipul43/jobsync-worker/internal/models"
	"gorm.io/gorm"
)

var ErrAccountNotFound = models.ErrAccountNotFound

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByID retrieves account by ID
func (r *AccountRepository) GetByID(ctx context.Context, accountID string) (*models.Account, error) {
	var account models.Account
	result := r.db.WithContext(ctx).First(&account, "id = ?", accountID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", result.Error)
	}
	return &account, nil
}

// ListEnabled retrieves all accounts with scheduled sync turned on
func (r *AccountRepository) ListEnabled(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	result := r.db.WithContext(ctx).
		Where("sync_enabled = ?", true).
		Order("created_at ASC").
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list enabled accounts: %w", result.Error)
	}
	return accounts, nil
}

// UpdateSyncDates records a successful sync and the advisory next run
func (r *AccountRepository) UpdateSyncDates(ctx context.Context, accountID string, lastSync time.Time, nextSync *time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"last_sync_date": lastSync,
			"next_sync_date": nextSync,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update sync dates: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

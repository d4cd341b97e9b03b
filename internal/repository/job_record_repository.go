package repository

import (
	"context"
	"fmt"

	"github.com/vipul43/jobsync-worker/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertBatchSize bounds the rows per INSERT so large fetches stay under the
// Postgres parameter limit.
const upsertBatchSize = 500

type JobRecordRepository struct {
	db *gorm.DB
}

func NewJobRecordRepository(db *gorm.DB) *JobRecordRepository {
	return &JobRecordRepository{db: db}
}

func upsertByUUID() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"account_id", "scheduled_at", "status", "raw_status", "total_price", "source", "payload", "updated_at"}),
	}
}

// latestByUUID keeps the last copy of each UUID at its first position.
// Postgres rejects an ON CONFLICT DO UPDATE that touches the same row twice
// in one statement.
func latestByUUID(records []models.JobRecord) []models.JobRecord {
	index := make(map[string]int, len(records))
	out := make([]models.JobRecord, 0, len(records))
	for _, record := range records {
		if i, ok := index[record.UUID]; ok {
			out[i] = record
			continue
		}
		index[record.UUID] = len(out)
		out = append(out, record)
	}
	return out
}

// BulkUpsert inserts the records, overwriting any existing row with the same UUID
func (r *JobRecordRepository) BulkUpsert(ctx context.Context, records []models.JobRecord) error {
	if len(records) == 0 {
		return nil
	}
	records = latestByUUID(records)
	result := r.db.WithContext(ctx).
		Clauses(upsertByUUID()).
		CreateInBatches(&records, upsertBatchSize)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert job records: %w", result.Error)
	}
	return nil
}

// FindByAccount retrieves all stored records for an account, oldest first
func (r *JobRecordRepository) FindByAccount(ctx context.Context, accountID string) ([]models.JobRecord, error) {
	var records []models.JobRecord
	result := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("scheduled_at ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query job records: %w", result.Error)
	}
	return records, nil
}

// Replace overwrites one record with its fresh upstream copy
func (r *JobRecordRepository) Replace(ctx context.Context, record models.JobRecord) error {
	result := r.db.WithContext(ctx).
		Clauses(upsertByUUID()).
		Create(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to replace job record %s: %w", record.UUID, result.Error)
	}
	return nil
}

// Delete removes one record. Deleting a missing record is not an error.
func (r *JobRecordRepository) Delete(ctx context.Context, uuid string) error {
	result := r.db.WithContext(ctx).Delete(&models.JobRecord{}, "uuid = ?", uuid)
	if result.Error != nil {
		return fmt.Errorf("failed to delete job record %s: %w", uuid, result.Error)
	}
	return nil
}

// CountByAccount returns the number of stored records for an account
func (r *JobRecordRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.JobRecord{}).
		Where("account_id = ?", accountID).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count job records: %w", result.Error)
	}
	return count, nil
}

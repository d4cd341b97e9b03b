package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vipul43/jobsync-worker/internal/models"
)

// dryRunDB builds statements with the Postgres dialect without connecting.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=localhost user=test dbname=test sslmode=disable"), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestUpsertByUUID_SQL(t *testing.T) {
	db := dryRunDB(t)
	price := 80.0
	record := models.JobRecord{
		UUID:        "AB12",
		AccountID:   "acc-1",
		ScheduledAt: time.Date(2025, time.March, 4, 9, 0, 0, 0, time.UTC),
		Status:      models.JobStatusCompleted,
		RawStatus:   "Completed",
		TotalPrice:  &price,
		Source:      "Google",
		Payload:     models.JSONB{"UUID": "AB12"},
	}

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Clauses(upsertByUUID()).Create(&record)
	})

	assert.Contains(t, sql, `INSERT INTO "job_record"`)
	assert.Contains(t, sql, `ON CONFLICT ("uuid") DO UPDATE SET`)
	for _, column := range []string{"account_id", "scheduled_at", "status", "raw_status", "total_price", "source", "payload", "updated_at"} {
		assert.Contains(t, sql, `"`+column+`"="excluded"."`+column+`"`)
	}
	assert.NotContains(t, sql, `"created_at"="excluded"."created_at"`, "a re-upsert keeps the original creation time")
}

func TestLatestByUUID(t *testing.T) {
	records := []models.JobRecord{
		{UUID: "A", RawStatus: "Pending"},
		{UUID: "B", RawStatus: "Pending"},
		{UUID: "A", RawStatus: "Completed"},
		{UUID: "C", RawStatus: "Pending"},
		{UUID: "B", RawStatus: "Cancelled"},
	}

	got := latestByUUID(records)

	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].UUID)
	assert.Equal(t, "Completed", got[0].RawStatus)
	assert.Equal(t, "B", got[1].UUID)
	assert.Equal(t, "Cancelled", got[1].RawStatus)
	assert.Equal(t, "C", got[2].UUID)
}

func TestLatestByUUID_NoDuplicates(t *testing.T) {
	records := []models.JobRecord{{UUID: "A"}, {UUID: "B"}}
	assert.Equal(t, records, latestByUUID(records))
}

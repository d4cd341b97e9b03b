package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipul43/jobsync-worker/internal/models"
)

func price(v float64) *float64 { return &v }

func TestConversionValue(t *testing.T) {
	account := &models.Account{DefaultConversionValue: 10}

	tests := []struct {
		name     string
		record   models.JobRecord
		expected float64
	}{
		{"no price uses default", models.JobRecord{Status: models.JobStatusPending}, 10},
		{"zero price uses default", models.JobRecord{Status: models.JobStatusPending, TotalPrice: price(0)}, 10},
		{"price overrides default", models.JobRecord{Status: models.JobStatusCompleted, TotalPrice: price(50)}, 50},
		{"cancelled always zero", models.JobRecord{Status: models.JobStatusCancelled, TotalPrice: price(50)}, 0},
		{"cancelled without price", models.JobRecord{Status: models.JobStatusCancelled}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConversionValue(account, tt.record))
		})
	}
}

func TestMatchesSourceFilter(t *testing.T) {
	open := &models.Account{}
	assert.True(t, MatchesSourceFilter(open, models.JobRecord{Source: "anything"}))

	filtered := &models.Account{SourceFilter: models.StringList{"Google", " yelp "}}
	assert.True(t, MatchesSourceFilter(filtered, models.JobRecord{Source: "google"}))
	assert.True(t, MatchesSourceFilter(filtered, models.JobRecord{Source: "YELP"}))
	assert.False(t, MatchesSourceFilter(filtered, models.JobRecord{Source: "Google Ads"}))
	assert.False(t, MatchesSourceFilter(filtered, models.JobRecord{Source: ""}))
}

func TestBuildConversionRows(t *testing.T) {
	account := &models.Account{
		DefaultConversionValue: 10,
		SourceFilter:           models.StringList{"google"},
	}
	day := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

	records := []models.JobRecord{
		{UUID: "LATE", ScheduledAt: day.Add(48 * time.Hour), Status: models.JobStatusCancelled, Source: "Google", TotalPrice: price(99)},
		{UUID: "SKIP", ScheduledAt: day, Status: models.JobStatusCompleted, Source: "Yelp"},
		{UUID: "EARLY", ScheduledAt: day, Status: models.JobStatusCompleted, Source: "Google", TotalPrice: price(50),
			Payload: models.JSONB{"Email": "a@example.com", "Phone": "555-0100"}},
	}

	rows := BuildConversionRows(account, records)
	require.Len(t, rows, 3)
	assert.Equal(t, ConversionHeader, rows[0])
	assert.Equal(t, []interface{}{"EARLY", "2025-03-01T09:00:00Z", "completed", "Google", 50.0, "a@example.com", "555-0100"}, rows[1])
	assert.Equal(t, []interface{}{"LATE", "2025-03-03T09:00:00Z", "cancelled", "Google", 0.0, "", ""}, rows[2])
}

func TestBuildConversionRows_Empty(t *testing.T) {
	rows := BuildConversionRows(&models.Account{}, nil)
	assert.Equal(t, [][]interface{}{ConversionHeader}, rows)
}

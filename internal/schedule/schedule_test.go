package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipul43/jobsync-worker/internal/models"
)

var allFrequencies = []models.SyncFrequency{
	models.FrequencyDaily,
	models.FrequencyWeekly,
	models.FrequencyMonthly,
	models.FrequencyCustom,
}

func at(hour, minute int) time.Time {
	return time.Date(2025, time.March, 12, hour, minute, 30, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestParseTimeOfDay(t *testing.T) {
	h, m, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9, h)
	assert.Equal(t, 30, m)

	for _, bad := range []string{"", "9", "24:00", "10:60", "ab:cd", "10:00:00"} {
		_, _, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestShouldRunNow_Disabled(t *testing.T) {
	c := Cadence{Enabled: false, Frequency: models.FrequencyDaily, TimeOfDay: "10:00"}
	assert.False(t, ShouldRunNow(c, nil, at(10, 0)))
}

func TestShouldRunNow_OutsideWindow(t *testing.T) {
	for _, f := range allFrequencies {
		c := Cadence{Enabled: true, Frequency: f, TimeOfDay: "10:00"}

		assert.False(t, ShouldRunNow(c, nil, at(10, 6)), "%s +6m", f)
		assert.False(t, ShouldRunNow(c, nil, at(9, 54)), "%s -6m", f)
		assert.False(t, ShouldRunNow(c, nil, at(16, 0)), "%s +6h", f)
		assert.True(t, ShouldRunNow(c, nil, at(10, 5)), "%s +5m", f)
		assert.True(t, ShouldRunNow(c, nil, at(9, 55)), "%s -5m", f)
	}
}

func TestShouldRunNow_InvalidTime(t *testing.T) {
	c := Cadence{Enabled: true, Frequency: models.FrequencyDaily, TimeOfDay: "later"}
	assert.False(t, ShouldRunNow(c, nil, at(10, 0)))
}

func TestShouldRunNow_Frequencies(t *testing.T) {
	now := at(10, 2)

	tests := []struct {
		name      string
		frequency models.SyncFrequency
		last      *time.Time
		expected  bool
	}{
		{"daily ran an hour ago", models.FrequencyDaily, ptr(now.Add(-time.Hour)), true},
		{"weekly never ran", models.FrequencyWeekly, nil, true},
		{"weekly six days", models.FrequencyWeekly, ptr(now.AddDate(0, 0, -6)), false},
		{"weekly seven days", models.FrequencyWeekly, ptr(now.AddDate(0, 0, -7)), true},
		{"monthly never ran", models.FrequencyMonthly, nil, true},
		{"monthly same month", models.FrequencyMonthly, ptr(time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)), false},
		{"monthly previous month", models.FrequencyMonthly, ptr(time.Date(2025, time.February, 28, 10, 0, 0, 0, time.UTC)), true},
		{"monthly previous year", models.FrequencyMonthly, ptr(time.Date(2024, time.December, 12, 10, 0, 0, 0, time.UTC)), true},
		{"custom never ran", models.FrequencyCustom, nil, true},
		{"custom 23 hours", models.FrequencyCustom, ptr(now.Add(-23 * time.Hour)), false},
		{"custom 24 hours", models.FrequencyCustom, ptr(now.Add(-24 * time.Hour)), true},
		{"unknown frequency", models.SyncFrequency("hourly"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Cadence{Enabled: true, Frequency: tt.frequency, TimeOfDay: "10:00"}
			assert.Equal(t, tt.expected, ShouldRunNow(c, tt.last, now))
		})
	}
}

func TestNextRunAfter(t *testing.T) {
	now := time.Date(2025, time.January, 31, 10, 3, 45, 0, time.UTC)

	tests := []struct {
		frequency models.SyncFrequency
		expected  time.Time
	}{
		{models.FrequencyDaily, time.Date(2025, time.February, 1, 9, 30, 0, 0, time.UTC)},
		{models.FrequencyCustom, time.Date(2025, time.February, 1, 9, 30, 0, 0, time.UTC)},
		{models.FrequencyWeekly, time.Date(2025, time.February, 7, 9, 30, 0, 0, time.UTC)},
		{models.FrequencyMonthly, time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.frequency), func(t *testing.T) {
			next, err := NextRunAfter(Cadence{Frequency: tt.frequency, TimeOfDay: "09:30"}, now)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, next)
			assert.True(t, next.After(now))
			assert.Zero(t, next.Second())
		})
	}
}

func TestNextRunAfter_Errors(t *testing.T) {
	_, err := NextRunAfter(Cadence{Frequency: models.FrequencyDaily, TimeOfDay: "nope"}, at(10, 0))
	assert.Error(t, err)

	_, err = NextRunAfter(Cadence{Frequency: "hourly", TimeOfDay: "10:00"}, at(10, 0))
	assert.Error(t, err)
}

// Package schedule decides when an account's sync is due.
//
// Both functions are pure: the caller passes the clock reading. ShouldRunNow
// is the authoritative gate; NextRunAfter only produces the advisory
// next_sync_date shown to operators.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vipul43/jobsync-worker/internal/models"
)

// Window is how far the clock may be from the configured time of day.
const Window = 5 * time.Minute

// Cadence is the scheduling part of an account.
type Cadence struct {
	Enabled   bool
	Frequency models.SyncFrequency
	TimeOfDay string // HH:MM
}

// CadenceOf extracts the cadence from an account.
func CadenceOf(a *models.Account) Cadence {
	return Cadence{
		Enabled:   a.SyncEnabled,
		Frequency: a.SyncFrequency,
		TimeOfDay: a.SyncTime,
	}
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// ShouldRunNow reports whether a sync is due at now. last is the previous
// successful run, nil if there was none.
func ShouldRunNow(c Cadence, last *time.Time, now time.Time) bool {
	if !c.Enabled {
		return false
	}

	hour, minute, err := ParseTimeOfDay(c.TimeOfDay)
	if err != nil {
		return false
	}

	nowMinutes := now.Hour()*60 + now.Minute()
	configured := hour*60 + minute
	diff := nowMinutes - configured
	if diff < 0 {
		diff = -diff
	}
	if diff > int(Window/time.Minute) {
		return false
	}

	switch c.Frequency {
	case models.FrequencyDaily:
		return true
	case models.FrequencyWeekly:
		if last == nil {
			return true
		}
		return int(now.Sub(*last).Hours()/24) >= 7
	case models.FrequencyMonthly:
		if last == nil {
			return true
		}
		return monthsBetween(*last, now) >= 1
	case models.FrequencyCustom:
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	default:
		return false
	}
}

// NextRunAfter returns the advisory next run time following now.
func NextRunAfter(c Cadence, now time.Time) (time.Time, error) {
	hour, minute, err := ParseTimeOfDay(c.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	var next time.Time
	switch c.Frequency {
	case models.FrequencyDaily, models.FrequencyCustom:
		next = now.AddDate(0, 0, 1)
	case models.FrequencyWeekly:
		next = now.AddDate(0, 0, 7)
	case models.FrequencyMonthly:
		next = now.AddDate(0, 1, 0)
	default:
		return time.Time{}, fmt.Errorf("unknown sync frequency %q", c.Frequency)
	}

	return time.Date(next.Year(), next.Month(), next.Day(), hour, minute, 0, 0, now.Location()), nil
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

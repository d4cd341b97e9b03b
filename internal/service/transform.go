package service

import (
	"sort"
	"strings"
	"time"

	"github.com/vipul43/jobsync-worker/internal/models"
)

// ConversionHeader is the first row written to the sheet.
var ConversionHeader = []interface{}{"UUID", "Scheduled", "Status", "Source", "Conversion Value", "Email", "Phone"}

// ConversionValue is the value reported for one job: the account default,
// overridden by a non-zero total price, overridden by zero when the job was
// cancelled.
func ConversionValue(account *models.Account, record models.JobRecord) float64 {
	value := account.DefaultConversionValue
	if record.TotalPrice != nil && *record.TotalPrice != 0 {
		value = *record.TotalPrice
	}
	if record.Status == models.JobStatusCancelled {
		value = 0
	}
	return value
}

// MatchesSourceFilter reports whether the record's source is one of the
// account's tags. An empty filter matches everything.
func MatchesSourceFilter(account *models.Account, record models.JobRecord) bool {
	if len(account.SourceFilter) == 0 {
		return true
	}
	source := strings.TrimSpace(record.Source)
	for _, tag := range account.SourceFilter {
		if strings.EqualFold(strings.TrimSpace(tag), source) {
			return true
		}
	}
	return false
}

// BuildConversionRows filters and orders the records and renders them as
// sheet rows, header first.
func BuildConversionRows(account *models.Account, records []models.JobRecord) [][]interface{} {
	selected := make([]models.JobRecord, 0, len(records))
	for _, r := range records {
		if MatchesSourceFilter(account, r) {
			selected = append(selected, r)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].ScheduledAt.Before(selected[j].ScheduledAt)
	})

	rows := make([][]interface{}, 0, len(selected)+1)
	rows = append(rows, ConversionHeader)
	for _, r := range selected {
		rows = append(rows, []interface{}{
			r.UUID,
			r.ScheduledAt.UTC().Format(time.RFC3339),
			string(r.Status),
			r.Source,
			ConversionValue(account, r),
			payloadString(r.Payload, "Email"),
			payloadString(r.Payload, "Phone"),
		})
	}
	return rows
}

func payloadString(p models.JSONB, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

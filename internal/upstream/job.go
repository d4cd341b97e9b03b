package upstream

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/vipul43/jobsync-worker/internal/models"
	"github.com/vipul43/jobsync-worker/internal/resilience"
)

// Upstream field names.
const (
	fieldUUID     = "UUID"
	fieldDateTime = "JobDateTime"
	fieldStatus   = "Status"
	fieldTotal    = "JobTotalPrice"
	fieldSource   = "JobSource"
)

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseJob maps an upstream object onto the JobRecord schema. The object is
// kept verbatim in Payload.
func parseJob(raw map[string]interface{}) (models.JobRecord, error) {
	uuid := stringField(raw, fieldUUID)
	if uuid == "" {
		return models.JobRecord{}, resilience.NewValidationError("missing %s", fieldUUID)
	}

	scheduled, err := parseTime(stringField(raw, fieldDateTime))
	if err != nil {
		return models.JobRecord{}, resilience.NewValidationError("job %s: %v", uuid, err)
	}

	rawStatus := stringField(raw, fieldStatus)

	return models.JobRecord{
		UUID:        uuid,
		ScheduledAt: scheduled,
		Status:      models.NormalizeJobStatus(rawStatus),
		RawStatus:   rawStatus,
		TotalPrice:  numberField(raw, fieldTotal),
		Source:      stringField(raw, fieldSource),
		Payload:     models.JSONB(raw),
	}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func stringField(raw map[string]interface{}, key string) string {
	switch v := raw[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// numberField returns nil when the field is absent or not numeric.
func numberField(raw map[string]interface{}, key string) *float64 {
	switch v := raw[key].(type) {
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

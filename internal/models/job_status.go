package models

import "strings"

// JobStatus is the normalized upstream job status.
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusOther     JobStatus = "other"
)

// NormalizeJobStatus maps a raw upstream status onto JobStatus.
//
// "Completed" and "Done pending approval" are both treated as completed.
// Any status mentioning cancelled/canceled, in any casing, is cancelled.
func NormalizeJobStatus(raw string) JobStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "cancelled"), strings.Contains(s, "canceled"):
		return JobStatusCancelled
	case s == "completed", s == "done pending approval", s == "done":
		return JobStatusCompleted
	case s == "submitted":
		return JobStatusSubmitted
	case s == "pending":
		return JobStatusPending
	default:
		return JobStatusOther
	}
}

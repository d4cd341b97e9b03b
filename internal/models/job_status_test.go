package models

import "testing"

func TestNormalizeJobStatus(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected JobStatus
	}{
		{"submitted", "Submitted", JobStatusSubmitted},
		{"pending", "Pending", JobStatusPending},
		{"completed", "Completed", JobStatusCompleted},
		{"done pending approval", "Done Pending Approval", JobStatusCompleted},
		{"cancelled british", "Cancelled", JobStatusCancelled},
		{"canceled american", "canceled", JobStatusCancelled},
		{"cancelled upper", "CANCELLED", JobStatusCancelled},
		{"cancelled variant", "Canceled by customer", JobStatusCancelled},
		{"whitespace", "  pending ", JobStatusPending},
		{"unknown", "In progress", JobStatusOther},
		{"empty", "", JobStatusOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeJobStatus(tt.raw); got != tt.expected {
				t.Errorf("NormalizeJobStatus(%q) = %s, expected %s", tt.raw, got, tt.expected)
			}
		})
	}
}

package models

import "time"

// SyncKind identifies which pipeline stage a history entry belongs to.
type SyncKind string

const (
	SyncKindJobs          SyncKind = "jobs"
	SyncKindSheets        SyncKind = "sheets"
	SyncKindUpdateCleanup SyncKind = "update-cleanup"
)

// Sync history status constants
const (
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// SyncHistory is an append-only audit entry, one per sync attempt.
type SyncHistory struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	AccountID    string    `gorm:"column:account_id;index" json:"account_id"`
	Kind         SyncKind  `gorm:"column:kind" json:"kind"`
	Status       string    `gorm:"column:status" json:"status"`
	Timestamp    time.Time `gorm:"column:timestamp;index" json:"timestamp"`
	DurationMs   int64     `gorm:"column:duration_ms" json:"duration_ms"`
	ErrorMessage *string   `gorm:"column:error_message" json:"error_message,omitempty"`
	Details      JSONB     `gorm:"column:details;type:jsonb" json:"details"`
}

// TableName specifies the table name for GORM
func (SyncHistory) TableName() string {
	return "sync_history"
}

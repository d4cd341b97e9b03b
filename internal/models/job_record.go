package models

import "time"

// JobRecord is the local copy of one upstream job. UUID is upstream-global and
// the only upsert key.
type JobRecord struct {
	UUID        string    `gorm:"column:uuid;primaryKey" json:"uuid"`
	AccountID   string    `gorm:"column:account_id;index" json:"account_id"`
	ScheduledAt time.Time `gorm:"column:scheduled_at;index" json:"scheduled_at"`
	Status      JobStatus `gorm:"column:status" json:"status"`
	RawStatus   string    `gorm:"column:raw_status" json:"raw_status"`
	TotalPrice  *float64  `gorm:"column:total_price" json:"total_price,omitempty"`
	Source      string    `gorm:"column:source" json:"source"`
	// Payload holds the upstream record verbatim, including fields not mapped above.
	Payload   JSONB     `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (JobRecord) TableName() string {
	return "job_record"
}

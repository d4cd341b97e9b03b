package models

import (
	"errors"
	"time"
)

// ErrAccountNotFound is returned when no account row has the requested ID.
var ErrAccountNotFound = errors.New("account not found")

// SyncFrequency is the cadence at which an account is synced.
type SyncFrequency string

const (
	FrequencyDaily   SyncFrequency = "daily"
	FrequencyWeekly  SyncFrequency = "weekly"
	FrequencyMonthly SyncFrequency = "monthly"
	FrequencyCustom  SyncFrequency = "custom"
)

// Account is one upstream tenant whose jobs are synced to a spreadsheet.
type Account struct {
	ID                     string        `gorm:"column:id;primaryKey" json:"id"`
	Name                   string        `gorm:"column:name" json:"name"`
	UpstreamToken          string        `gorm:"column:upstream_token" json:"-"`
	SheetID                string        `gorm:"column:sheet_id" json:"sheet_id"`
	SourceFilter           StringList    `gorm:"column:source_filter;type:jsonb" json:"source_filter"`
	DefaultConversionValue float64       `gorm:"column:default_conversion_value" json:"default_conversion_value"`
	SyncEnabled            bool          `gorm:"column:sync_enabled;index" json:"sync_enabled"`
	SyncFrequency          SyncFrequency `gorm:"column:sync_frequency" json:"sync_frequency"`
	SyncTime               string        `gorm:"column:sync_time" json:"sync_time"` // HH:MM
	LastSyncDate           *time.Time    `gorm:"column:last_sync_date" json:"last_sync_date,omitempty"`
	NextSyncDate           *time.Time    `gorm:"column:next_sync_date" json:"next_sync_date,omitempty"`
	CreatedAt              time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time     `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Account) TableName() string {
	return "account"
}

package models

import "time"

// PayRun is a local mirror of a provider-owned payroll run.
type PayRun struct {
	ID               string       `gorm:"column:id;primaryKey"`
	ConnectionID     string       `gorm:"column:connection_id;uniqueIndex:idx_pay_runs_natural_key"`
	ProviderRecordID string       `gorm:"column:provider_record_id;uniqueIndex:idx_pay_runs_natural_key"`
	PayDate          *time.Time   `gorm:"column:pay_date"`
	PeriodStart      *time.Time   `gorm:"column:period_start"`
	PeriodEnd        *time.Time   `gorm:"column:period_end"`
	Status           EntityStatus `gorm:"column:status"`
	SourceData       JSONB        `gorm:"column:source_data;type:jsonb"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at"`
	CreatedAt        time.Time    `gorm:"column:created_at"`
	UpdatedAt        time.Time    `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (PayRun) TableName() string {
	return "pay_runs"
}

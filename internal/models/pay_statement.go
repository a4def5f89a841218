package models

import "time"

// PayStatement is a local mirror of a provider-owned pay statement. It
// references the employee and pay run by their provider-assigned ids so the
// row stays self-contained even if the related rows failed to sync.
type PayStatement struct {
	ID                 string       `gorm:"column:id;primaryKey"`
	ConnectionID       string       `gorm:"column:connection_id;uniqueIndex:idx_pay_statements_natural_key"`
	ProviderRecordID   string       `gorm:"column:provider_record_id;uniqueIndex:idx_pay_statements_natural_key"`
	EmployeeProviderID string       `gorm:"column:employee_provider_id;index"`
	PayRunProviderID   string       `gorm:"column:pay_run_provider_id;index"`
	GrossPay           float64      `gorm:"column:gross_pay"`
	NetPay             float64      `gorm:"column:net_pay"`
	TaxWithheld        float64      `gorm:"column:tax_withheld"`
	Currency           string       `gorm:"column:currency"`
	PayDate            *time.Time   `gorm:"column:pay_date"`
	Status             EntityStatus `gorm:"column:status"`
	SourceData         JSONB        `gorm:"column:source_data;type:jsonb"`
	LastSeenAt         time.Time    `gorm:"column:last_seen_at"`
	CreatedAt          time.Time    `gorm:"column:created_at"`
	UpdatedAt          time.Time    `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (PayStatement) TableName() string {
	return "pay_statements"
}

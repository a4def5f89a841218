package models

import "time"

type EntityStatus string

const (
	EntityStatusActive   EntityStatus = "active"
	EntityStatusInactive EntityStatus = "inactive"
)

// Employee is a local mirror of a provider-owned individual record.
// (ConnectionID, ProviderRecordID) is the natural key used for idempotent
// upserts; rows are overwritten on re-sync, never deleted by the engine.
type Employee struct {
	ID                  string       `gorm:"column:id;primaryKey"`
	ConnectionID        string       `gorm:"column:connection_id;uniqueIndex:idx_employees_natural_key"`
	ProviderRecordID    string       `gorm:"column:provider_record_id;uniqueIndex:idx_employees_natural_key"`
	FirstName           string       `gorm:"column:first_name"`
	LastName            string       `gorm:"column:last_name"`
	Email               *string      `gorm:"column:email"`
	Title               *string      `gorm:"column:title"`
	Department          *string      `gorm:"column:department"`
	EncryptedNationalID []byte       `gorm:"column:encrypted_national_id"`
	StartDate           *time.Time   `gorm:"column:start_date"`
	EndDate             *time.Time   `gorm:"column:end_date"`
	Status              EntityStatus `gorm:"column:status"`
	SourceData          JSONB        `gorm:"column:source_data;type:jsonb"`
	LastSeenAt          time.Time    `gorm:"column:last_seen_at"`
	CreatedAt           time.Time    `gorm:"column:created_at"`
	UpdatedAt           time.Time    `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Employee) TableName() string {
	return "employees"
}

package models

import "time"

// Connection provider constants
const (
	ProviderFinch    = "finch"
	ProviderGusto    = "gusto"
	ProviderDeel     = "deel"
	ProviderADPRun   = "adp_run"
	ProviderBambooHR = "bamboohr"
)

type ConnectionStatus string

const (
	ConnectionStatusActive  ConnectionStatus = "active"
	ConnectionStatusRevoked ConnectionStatus = "revoked"
	ConnectionStatusError   ConnectionStatus = "error"
)

// Connection represents a delegated-access grant to an external payroll provider.
// Exactly one of UserID/OrganizationID is set; the credential column holds a
// vault-encrypted token blob and is never exposed outside the service layer.
type Connection struct {
	ID                string           `gorm:"column:id;primaryKey"`
	UserID            *string          `gorm:"column:user_id;index"`
	OrganizationID    *string          `gorm:"column:organization_id;index"`
	Provider          string           `gorm:"column:provider"`
	ProviderAccountID string           `gorm:"column:provider_account_id"`
	Credential        []byte           `gorm:"column:credential"`
	Scopes            string           `gorm:"column:scopes"`
	Status            ConnectionStatus `gorm:"column:status;index"`
	LastSyncAt        *time.Time       `gorm:"column:last_sync_at"`
	CreatedAt         time.Time        `gorm:"column:created_at"`
	UpdatedAt         time.Time        `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Connection) TableName() string {
	return "connections"
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit event type constants
const (
	EventIntegrationConnected    = "integration.connected"
	EventIntegrationDisconnected = "integration.disconnected"
	EventIntegrationErrored      = "integration.errored"
	EventSyncStarted             = "sync.started"
	EventSyncCompleted           = "sync.completed"
	EventSyncFailed              = "sync.failed"
)

// AuditEvent is an append-only record of a state-changing action. Rows are
// never updated or deleted.
type AuditEvent struct {
	ID         string    `gorm:"column:id;primaryKey"`
	EventType  string    `gorm:"column:event_type"`
	ActorID    *string   `gorm:"column:actor_id"`
	EntityType string    `gorm:"column:entity_type;index:idx_audit_events_entity"`
	EntityID   string    `gorm:"column:entity_id;index:idx_audit_events_entity"`
	Action     string    `gorm:"column:action"`
	Metadata   JSONB     `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time `gorm:"column:created_at;index"`
}

// TableName specifies the table name for GORM
func (AuditEvent) TableName() string {
	return "audit_events"
}

// NewAuditEvent builds an audit event with a fresh id and timestamp.
func NewAuditEvent(eventType string, actorID *string, entityType, entityID, action string, metadata JSONB) AuditEvent {
	return AuditEvent{
		ID:         uuid.New().String(),
		EventType:  eventType,
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}
}

package repository

import (
	"context"
	"fmt"

	"github.com/taxfolio/paysync/internal/models"
	"gorm.io/gorm"
)

// AuditRepository is the append-only event sink. Events are only ever
// inserted; there is no update or delete path.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends a single audit event
func (r *AuditRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// ListByEntity retrieves events for one entity, newest first
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	result := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", result.Error)
	}
	return events, nil
}

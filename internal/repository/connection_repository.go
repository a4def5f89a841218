package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taxfolio/paysync/internal/models"
	"gorm.io/gorm"
)

var ErrConnectionNotFound = errors.New("connection not found")

type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create persists a new connection and its audit event in one transaction.
func (r *ConnectionRepository) Create(ctx context.Context, conn *models.Connection, event *models.AuditEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conn).Error; err != nil {
			return fmt.Errorf("failed to create connection: %w", err)
		}
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("failed to write audit event: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a connection by ID
func (r *ConnectionRepository) GetByID(ctx context.Context, connectionID string) (*models.Connection, error) {
	var conn models.Connection
	result := r.db.WithContext(ctx).First(&conn, "id = ?", connectionID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", result.Error)
	}
	return &conn, nil
}

// ListByOwner retrieves all connections for a user or organization
func (r *ConnectionRepository) ListByOwner(ctx context.Context, userID, organizationID *string) ([]models.Connection, error) {
	query := r.db.WithContext(ctx)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	if organizationID != nil {
		query = query.Where("organization_id = ?", *organizationID)
	}

	var conns []models.Connection
	result := query.Order("created_at ASC").Find(&conns)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list connections: %w", result.Error)
	}
	return conns, nil
}

// MarkError transitions a connection to error status. Idempotent: connections
// already in error or revoked status are left untouched.
func (r *ConnectionRepository) MarkError(ctx context.Context, connectionID, reason string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Connection{}).
			Where("id = ? AND status = ?", connectionID, models.ConnectionStatusActive).
			Updates(map[string]interface{}{
				"status":     models.ConnectionStatusError,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark connection error: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil // already error or revoked
		}

		event := models.NewAuditEvent(models.EventIntegrationErrored, nil, "connection", connectionID, "update", models.JSONB{
			"reason": reason,
		})
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("failed to write audit event: %w", err)
		}
		return nil
	})
}

// MarkRevoked transitions a connection to revoked status on explicit disconnect.
func (r *ConnectionRepository) MarkRevoked(ctx context.Context, connectionID string, actorID *string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Connection{}).
			Where("id = ? AND status <> ?", connectionID, models.ConnectionStatusRevoked).
			Updates(map[string]interface{}{
				"status":     models.ConnectionStatusRevoked,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to revoke connection: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		event := models.NewAuditEvent(models.EventIntegrationDisconnected, actorID, "connection", connectionID, "update", nil)
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("failed to write audit event: %w", err)
		}
		return nil
	})
}

// TouchLastSync records a successful sync completion time
func (r *ConnectionRepository) TouchLastSync(ctx context.Context, connectionID string, syncedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ?", connectionID).
		Updates(map[string]interface{}{
			"last_sync_at": syncedAt,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update last sync time: %w", result.Error)
	}
	return nil
}

// UpdateCredential replaces the encrypted credential blob after a token refresh
func (r *ConnectionRepository) UpdateCredential(ctx context.Context, connectionID string, credential []byte) error {
	result := r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ?", connectionID).
		Updates(map[string]interface{}{
			"credential": credential,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update credential: %w", result.Error)
	}
	return nil
}

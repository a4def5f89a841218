package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taxfolio/paysync/internal/models"
	"gorm.io/gorm"
)

var ErrJobNotFound = errors.New("sync job not found")

type SyncJobRepository struct {
	db *gorm.DB
}

func NewSyncJobRepository(db *gorm.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// Create creates a new sync job
func (r *SyncJobRepository) Create(ctx context.Context, job *models.SyncJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}
	return nil
}

// GetByID retrieves a sync job by ID
func (r *SyncJobRepository) GetByID(ctx context.Context, jobID string) (*models.SyncJob, error) {
	var job models.SyncJob
	result := r.db.WithContext(ctx).First(&job, "id = ?", jobID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get sync job: %w", result.Error)
	}
	return &job, nil
}

// HasActiveJob reports whether a pending or processing job exists for the connection
func (r *SyncJobRepository) HasActiveJob(ctx context.Context, connectionID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("connection_id = ? AND status IN ?", connectionID,
			[]models.SyncJobStatus{models.JobStatusPending, models.JobStatusProcessing}).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to count active jobs: %w", result.Error)
	}
	return count > 0, nil
}

// GetPendingJobs retrieves pending jobs left over from previous runs
func (r *SyncJobRepository) GetPendingJobs(ctx context.Context, limit int) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	result := r.db.WithContext(ctx).
		Where("status = ?", models.JobStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", result.Error)
	}
	return jobs, nil
}

// GetStuckProcessingJobs retrieves jobs left in processing state, typically
// after a crash. These are never resumed, only reported.
func (r *SyncJobRepository) GetStuckProcessingJobs(ctx context.Context, olderThan time.Duration, limit int) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	result := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.JobStatusProcessing, time.Now().Add(-olderThan)).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query stuck jobs: %w", result.Error)
	}
	return jobs, nil
}

// MarkProcessing moves a pending job into processing and writes the start
// audit event in the same transaction. The status guard keeps the transition
// one-way.
func (r *SyncJobRepository) MarkProcessing(ctx context.Context, jobID string, event *models.AuditEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&models.SyncJob{}).
			Where("id = ? AND status = ?", jobID, models.JobStatusPending).
			Updates(map[string]interface{}{
				"status":     models.JobStatusProcessing,
				"started_at": now,
				"updated_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark job processing: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("job %s is not pending", jobID)
		}

		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("failed to write audit event: %w", err)
		}
		return nil
	})
}

// IncrementProcessed increments the processed-record counter
func (r *SyncJobRepository) IncrementProcessed(ctx context.Context, jobID string) error {
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"records_processed": gorm.Expr("records_processed + 1"),
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to increment processed count: %w", result.Error)
	}
	return nil
}

// IncrementFailed increments the failed-record counter
func (r *SyncJobRepository) IncrementFailed(ctx context.Context, jobID string) error {
	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"records_failed": gorm.Expr("records_failed + 1"),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to increment failed count: %w", result.Error)
	}
	return nil
}

// Finalize moves a job into a terminal state and writes the matching audit
// event in the same transaction. The status guard means a terminal job can
// never be finalized twice.
func (r *SyncJobRepository) Finalize(ctx context.Context, jobID string, status models.SyncJobStatus, errorMessage *string, event *models.AuditEvent) error {
	if status != models.JobStatusCompleted && status != models.JobStatusFailed {
		return fmt.Errorf("finalize requires a terminal status, got %s", status)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&models.SyncJob{}).
			Where("id = ? AND status = ?", jobID, models.JobStatusProcessing).
			Updates(map[string]interface{}{
				"status":        status,
				"error_message": errorMessage,
				"completed_at":  &now,
				"updated_at":    now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to finalize job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("job %s is not processing", jobID)
		}

		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("failed to write audit event: %w", err)
		}
		return nil
	})
}

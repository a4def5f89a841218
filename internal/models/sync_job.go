package models

import "time"

type SyncJobStatus string

const (
	JobStatusPending    SyncJobStatus = "pending"
	JobStatusProcessing SyncJobStatus = "processing"
	JobStatusCompleted  SyncJobStatus = "completed"
	JobStatusFailed     SyncJobStatus = "failed"
)

// SyncJob represents one execution attempt of the import against a Connection.
// Terminal rows (completed/failed) are never mutated again; a retry always
// creates a fresh job.
type SyncJob struct {
	ID               string        `gorm:"column:id;primaryKey"`
	ConnectionID     string        `gorm:"column:connection_id;index"`
	Status           SyncJobStatus `gorm:"column:status;index"`
	RecordsProcessed int           `gorm:"column:records_processed"`
	RecordsFailed    int           `gorm:"column:records_failed"`
	ErrorMessage     *string       `gorm:"column:error_message"`
	StartedAt        time.Time     `gorm:"column:started_at"`
	CompletedAt      *time.Time    `gorm:"column:completed_at"`
	CreatedAt        time.Time     `gorm:"column:created_at"`
	UpdatedAt        time.Time     `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (SyncJob) TableName() string {
	return "sync_jobs"
}

// IsTerminal reports whether the job has reached a final state.
func (j SyncJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

package service

import (
	"context"
	"time"

	"github.com/taxfolio/paysync/internal/models"
	"github.com/taxfolio/paysync/internal/provider"
)

// ProviderClient is the provider API surface the services consume.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, code string) (*provider.TokenResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*provider.TokenResult, error)
	FetchDirectory(ctx context.Context, accessToken, pageToken string) (*provider.DirectoryPage, error)
	FetchIndividual(ctx context.Context, accessToken, individualID string) (*provider.Individual, error)
	FetchPayStatements(ctx context.Context, accessToken, individualID string) ([]provider.PayStatement, error)
}

// ConnectionStore persists delegated-access grants.
type ConnectionStore interface {
	Create(ctx context.Context, conn *models.Connection, event *models.AuditEvent) error
	GetByID(ctx context.Context, connectionID string) (*models.Connection, error)
	ListByOwner(ctx context.Context, userID, organizationID *string) ([]models.Connection, error)
	MarkError(ctx context.Context, connectionID, reason string) error
	MarkRevoked(ctx context.Context, connectionID string, actorID *string) error
	TouchLastSync(ctx context.Context, connectionID string, syncedAt time.Time) error
	UpdateCredential(ctx context.Context, connectionID string, credential []byte) error
}

// SyncJobStore persists sync job rows.
type SyncJobStore interface {
	Create(ctx context.Context, job *models.SyncJob) error
	GetByID(ctx context.Context, jobID string) (*models.SyncJob, error)
	HasActiveJob(ctx context.Context, connectionID string) (bool, error)
	MarkProcessing(ctx context.Context, jobID string, event *models.AuditEvent) error
	IncrementProcessed(ctx context.Context, jobID string) error
	IncrementFailed(ctx context.Context, jobID string) error
	Finalize(ctx context.Context, jobID string, status models.SyncJobStatus, errorMessage *string, event *models.AuditEvent) error
}

// AuditStore reads the append-only event log. Writes happen inside the
// connection and job store transactions, never through here.
type AuditStore interface {
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditEvent, error)
}

// EntityStore persists locally mirrored provider records.
type EntityStore interface {
	UpsertEmployee(ctx context.Context, employee *models.Employee) error
	UpsertPayRun(ctx context.Context, payRun *models.PayRun) error
	UpsertPayStatement(ctx context.Context, statement *models.PayStatement) error
}

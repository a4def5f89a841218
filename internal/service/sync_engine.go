package service

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/taxfolio/paysync/internal/models"
	"github.com/taxfolio/paysync/internal/provider"
	"github.com/taxfolio/paysync/internal/vault"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSyncWorkers = 4
	// MaxDirectoryPages bounds pagination against a misbehaving provider.
	MaxDirectoryPages = 1000
)

// Waker nudges the job runner after a new job row is created, so callers do
// not wait for the next poll tick.
type Waker interface {
	Wake()
}

// JobStatus is the caller-facing view of one sync job, read by polling.
type JobStatus struct {
	JobID            string
	Status           models.SyncJobStatus
	RecordsProcessed int
	RecordsFailed    int
	ErrorMessage     *string
	StartedAt        time.Time
	CompletedAt      *time.Time
}

// SyncEngine drives the import of provider-owned records into the local
// store, one job at a time per connection.
type SyncEngine struct {
	connRepo       ConnectionStore
	jobRepo        SyncJobStore
	entityRepo     EntityStore
	providerClient ProviderClient
	vault          *vault.Vault
	workers        int
	waker          Waker
}

func NewSyncEngine(
	connRepo ConnectionStore,
	jobRepo SyncJobStore,
	entityRepo EntityStore,
	providerClient ProviderClient,
	v *vault.Vault,
	workers int,
) *SyncEngine {
	if workers <= 0 {
		workers = DefaultSyncWorkers
	}
	return &SyncEngine{
		connRepo:       connRepo,
		jobRepo:        jobRepo,
		entityRepo:     entityRepo,
		providerClient: providerClient,
		vault:          v,
		workers:        workers,
	}
}

// SetWaker wires the runner notification. Optional; without it new jobs wait
// for the runner's next poll tick.
func (e *SyncEngine) SetWaker(w Waker) {
	e.waker = w
}

// StartSync allocates a new job for the connection and returns its id
// immediately. The import itself runs asynchronously; callers poll
// GetJobStatus for progress.
func (e *SyncEngine) StartSync(ctx context.Context, connectionID string) (string, error) {
	conn, err := e.connRepo.GetByID(ctx, connectionID)
	if err != nil {
		return "", err
	}

	if conn.Status != models.ConnectionStatusActive {
		return "", fmt.Errorf("%w: status is %s", ErrConnectionNotActive, conn.Status)
	}

	active, err := e.jobRepo.HasActiveJob(ctx, connectionID)
	if err != nil {
		return "", err
	}
	if active {
		return "", ErrSyncAlreadyRunning
	}

	now := time.Now()
	job := &models.SyncJob{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		Status:       models.JobStatusPending,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.jobRepo.Create(ctx, job); err != nil {
		return "", err
	}

	log.Printf("Created sync job %s for connection %s", job.ID, connectionID)

	if e.waker != nil {
		e.waker.Wake()
	}

	return job.ID, nil
}

// GetJobStatus returns the polling view of one job
func (e *SyncEngine) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := e.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &JobStatus{
		JobID:            job.ID,
		Status:           job.Status,
		RecordsProcessed: job.RecordsProcessed,
		RecordsFailed:    job.RecordsFailed,
		ErrorMessage:     job.ErrorMessage,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
	}, nil
}

// RunJob executes one sync job to completion or failure. It never returns an
// error: every outcome is recorded on the job row.
func (e *SyncEngine) RunJob(ctx context.Context, job models.SyncJob) {
	startEvent := models.NewAuditEvent(models.EventSyncStarted, nil, "sync_job", job.ID, "update", models.JSONB{
		"connection_id": job.ConnectionID,
	})
	if err := e.jobRepo.MarkProcessing(ctx, job.ID, &startEvent); err != nil {
		log.Printf("Skipping job %s: %v", job.ID, err)
		return
	}

	conn, err := e.connRepo.GetByID(ctx, job.ConnectionID)
	if err != nil {
		log.Printf("Job %s: failed to load connection %s: %v", job.ID, job.ConnectionID, err)
		e.finalize(ctx, job, models.JobStatusFailed, "connection not found", 0, 0)
		return
	}

	// Stage 1: decrypt the credential, refreshing it when expired. The
	// plaintext lives in memory for this job only.
	cred, err := e.credentialFor(ctx, conn)
	if err != nil {
		log.Printf("Job %s: credential error for connection %s: %v", job.ID, conn.ID, err)
		if err := e.connRepo.MarkError(ctx, conn.ID, "credential error"); err != nil {
			log.Printf("Warning: failed to mark connection %s error: %v", conn.ID, err)
		}
		e.finalize(ctx, job, models.JobStatusFailed, "credential error", 0, 0)
		return
	}

	// Stage 2: the full directory is fetched as a unit. Any failure here
	// fails the whole job; a transient failure leaves the connection active
	// so callers can retry with a fresh job.
	individualIDs, err := e.fetchFullDirectory(ctx, cred.AccessToken)
	if err != nil {
		log.Printf("Job %s: directory fetch failed for connection %s: %v", job.ID, conn.ID, err)
		if provider.IsAuthError(err) {
			if err := e.connRepo.MarkError(ctx, conn.ID, "provider rejected credential"); err != nil {
				log.Printf("Warning: failed to mark connection %s error: %v", conn.ID, err)
			}
		}
		e.finalize(ctx, job, models.JobStatusFailed, fmt.Sprintf("directory fetch failed: %v", err), 0, 0)
		return
	}

	log.Printf("Job %s: syncing %d individuals for connection %s", job.ID, len(individualIDs), conn.ID)

	// Stage 3: each individual is an independent unit of work. A failed unit
	// increments the failure counter and the batch moves on.
	var processed, failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, individualID := range individualIDs {
		individualID := individualID
		g.Go(func() error {
			if err := e.syncIndividual(gctx, conn, cred.AccessToken, individualID); err != nil {
				atomic.AddInt64(&failed, 1)
				log.Printf("Job %s: failed to sync individual %s: %v", job.ID, individualID, err)
				if err := e.jobRepo.IncrementFailed(ctx, job.ID); err != nil {
					log.Printf("Warning: failed to update failed count for job %s: %v", job.ID, err)
				}
				if provider.IsAuthError(err) {
					if err := e.connRepo.MarkError(ctx, conn.ID, "provider rejected credential"); err != nil {
						log.Printf("Warning: failed to mark connection %s error: %v", conn.ID, err)
					}
				}
				return nil
			}

			atomic.AddInt64(&processed, 1)
			if err := e.jobRepo.IncrementProcessed(ctx, job.ID); err != nil {
				log.Printf("Warning: failed to update processed count for job %s: %v", job.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	processedCount := int(atomic.LoadInt64(&processed))
	failedCount := int(atomic.LoadInt64(&failed))

	// Stage 4: partial success is a success; the counters communicate the
	// shortfall. Only a batch with zero processed records fails the job.
	if processedCount == 0 && failedCount > 0 {
		e.finalize(ctx, job, models.JobStatusFailed,
			fmt.Sprintf("all %d records failed", failedCount), processedCount, failedCount)
		return
	}

	e.finalize(ctx, job, models.JobStatusCompleted, "", processedCount, failedCount)

	if err := e.connRepo.TouchLastSync(ctx, conn.ID, time.Now()); err != nil {
		log.Printf("Warning: failed to update last sync time for connection %s: %v", conn.ID, err)
	}

	log.Printf("Job %s completed: %d processed, %d failed", job.ID, processedCount, failedCount)
}

// credentialFor decrypts the connection credential and refreshes the access
// token when it is expired and a refresh token is available. The refreshed
// credential is re-encrypted before it is persisted.
func (e *SyncEngine) credentialFor(ctx context.Context, conn *models.Connection) (Credential, error) {
	cred, err := decryptCredential(e.vault, conn.Credential)
	if err != nil {
		return Credential{}, err
	}

	if !cred.IsExpired() {
		return cred, nil
	}
	if cred.RefreshToken == "" {
		return Credential{}, fmt.Errorf("access token expired and no refresh token is stored")
	}

	log.Printf("Access token expired for connection %s, refreshing...", conn.ID)

	token, err := e.providerClient.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to refresh token: %w", err)
	}

	refreshed := credentialFromToken(token)
	envelope, err := encryptCredential(e.vault, refreshed)
	if err != nil {
		return Credential{}, err
	}
	if err := e.connRepo.UpdateCredential(ctx, conn.ID, envelope); err != nil {
		return Credential{}, err
	}

	return refreshed, nil
}

// fetchFullDirectory walks every directory page. Downstream iteration needs
// the complete identifier set, so a failure on any page is a failure of the
// whole fetch.
func (e *SyncEngine) fetchFullDirectory(ctx context.Context, accessToken string) ([]string, error) {
	var ids []string
	pageToken := ""

	for page := 0; page < MaxDirectoryPages; page++ {
		directoryPage, err := e.providerClient.FetchDirectory(ctx, accessToken, pageToken)
		if err != nil {
			return nil, err
		}

		ids = append(ids, directoryPage.IndividualIDs...)

		if directoryPage.NextPageToken == "" {
			return ids, nil
		}
		pageToken = directoryPage.NextPageToken
	}

	return nil, fmt.Errorf("directory pagination exceeded %d pages", MaxDirectoryPages)
}

// syncIndividual imports one individual and their pay statements. Any error
// marks the whole unit failed.
func (e *SyncEngine) syncIndividual(ctx context.Context, conn *models.Connection, accessToken, individualID string) error {
	individual, err := e.providerClient.FetchIndividual(ctx, accessToken, individualID)
	if err != nil {
		return fmt.Errorf("fetch individual: %w", err)
	}

	employee, err := e.normalizeEmployee(conn.ID, individual)
	if err != nil {
		return fmt.Errorf("normalize individual: %w", err)
	}
	if err := e.entityRepo.UpsertEmployee(ctx, employee); err != nil {
		return err
	}

	statements, err := e.providerClient.FetchPayStatements(ctx, accessToken, individualID)
	if err != nil {
		return fmt.Errorf("fetch pay statements: %w", err)
	}

	now := time.Now()
	for i := range statements {
		statement := &statements[i]

		if statement.PayRunID != "" {
			payRun := normalizePayRun(conn.ID, statement, now)
			if err := e.entityRepo.UpsertPayRun(ctx, payRun); err != nil {
				return err
			}
		}

		if err := e.entityRepo.UpsertPayStatement(ctx, normalizePayStatement(conn.ID, statement, now)); err != nil {
			return err
		}
	}

	return nil
}

// normalizeEmployee maps a provider individual onto the local employee shape.
// The national id is vault-encrypted and scrubbed from the retained payload.
func (e *SyncEngine) normalizeEmployee(connectionID string, individual *provider.Individual) (*models.Employee, error) {
	var encryptedNationalID []byte
	if individual.NationalID != "" {
		var err error
		encryptedNationalID, err = e.vault.Encrypt([]byte(individual.NationalID))
		if err != nil {
			return nil, fmt.Errorf("encrypt national id: %w", err)
		}
	}

	sourceData := models.JSONB{}
	for k, v := range individual.Raw {
		if k == "national_id" {
			continue
		}
		sourceData[k] = v
	}

	status := models.EntityStatusActive
	if !individual.IsActive {
		status = models.EntityStatusInactive
	}

	now := time.Now()
	return &models.Employee{
		ID:                  uuid.New().String(),
		ConnectionID:        connectionID,
		ProviderRecordID:    individual.ID,
		FirstName:           individual.FirstName,
		LastName:            individual.LastName,
		Email:               optional(individual.Email),
		Title:               optional(individual.Title),
		Department:          optional(individual.Department),
		EncryptedNationalID: encryptedNationalID,
		StartDate:           individual.StartDate,
		EndDate:             individual.EndDate,
		Status:              status,
		SourceData:          sourceData,
		LastSeenAt:          now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

func normalizePayRun(connectionID string, statement *provider.PayStatement, now time.Time) *models.PayRun {
	return &models.PayRun{
		ID:               uuid.New().String(),
		ConnectionID:     connectionID,
		ProviderRecordID: statement.PayRunID,
		PayDate:          statement.PayDate,
		PeriodStart:      statement.PeriodStart,
		PeriodEnd:        statement.PeriodEnd,
		Status:           models.EntityStatusActive,
		SourceData:       models.JSONB(statement.Raw),
		LastSeenAt:       now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func normalizePayStatement(connectionID string, statement *provider.PayStatement, now time.Time) *models.PayStatement {
	return &models.PayStatement{
		ID:                 uuid.New().String(),
		ConnectionID:       connectionID,
		ProviderRecordID:   statement.ID,
		EmployeeProviderID: statement.IndividualID,
		PayRunProviderID:   statement.PayRunID,
		GrossPay:           statement.GrossPay,
		NetPay:             statement.NetPay,
		TaxWithheld:        statement.TaxWithheld,
		Currency:           statement.Currency,
		PayDate:            statement.PayDate,
		Status:             models.EntityStatusActive,
		SourceData:         models.JSONB(statement.Raw),
		LastSeenAt:         now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// finalize records the terminal transition and its audit event
func (e *SyncEngine) finalize(ctx context.Context, job models.SyncJob, status models.SyncJobStatus, errorMessage string, processed, failed int) {
	eventType := models.EventSyncCompleted
	if status == models.JobStatusFailed {
		eventType = models.EventSyncFailed
	}

	event := models.NewAuditEvent(eventType, nil, "sync_job", job.ID, "update", models.JSONB{
		"connection_id":     job.ConnectionID,
		"records_processed": processed,
		"records_failed":    failed,
	})

	var errMsg *string
	if errorMessage != "" {
		errMsg = &errorMessage
	}

	if err := e.jobRepo.Finalize(ctx, job.ID, status, errMsg, &event); err != nil {
		log.Printf("Warning: failed to finalize job %s: %v", job.ID, err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

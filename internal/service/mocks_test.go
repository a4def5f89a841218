package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taxfolio/paysync/internal/models"
	"github.com/taxfolio/paysync/internal/provider"
	"github.com/taxfolio/paysync/internal/repository"
)

// mockProviderClient stubs the provider API with func fields
type mockProviderClient struct {
	exchangeCodeFunc     func(ctx context.Context, code string) (*provider.TokenResult, error)
	refreshTokenFunc     func(ctx context.Context, refreshToken string) (*provider.TokenResult, error)
	fetchDirectoryFunc   func(ctx context.Context, accessToken, pageToken string) (*provider.DirectoryPage, error)
	fetchIndividualFunc  func(ctx context.Context, accessToken, individualID string) (*provider.Individual, error)
	fetchPayStmtsFunc    func(ctx context.Context, accessToken, individualID string) ([]provider.PayStatement, error)
	mu                   sync.Mutex
	refreshCalls         int
	individualFetchCalls int
}

func (m *mockProviderClient) ExchangeCode(ctx context.Context, code string) (*provider.TokenResult, error) {
	if m.exchangeCodeFunc != nil {
		return m.exchangeCodeFunc(ctx, code)
	}
	return &provider.TokenResult{AccessToken: "access-token"}, nil
}

func (m *mockProviderClient) RefreshToken(ctx context.Context, refreshToken string) (*provider.TokenResult, error) {
	m.mu.Lock()
	m.refreshCalls++
	m.mu.Unlock()
	if m.refreshTokenFunc != nil {
		return m.refreshTokenFunc(ctx, refreshToken)
	}
	return &provider.TokenResult{AccessToken: "refreshed-token", RefreshToken: refreshToken}, nil
}

func (m *mockProviderClient) FetchDirectory(ctx context.Context, accessToken, pageToken string) (*provider.DirectoryPage, error) {
	if m.fetchDirectoryFunc != nil {
		return m.fetchDirectoryFunc(ctx, accessToken, pageToken)
	}
	return &provider.DirectoryPage{}, nil
}

func (m *mockProviderClient) FetchIndividual(ctx context.Context, accessToken, individualID string) (*provider.Individual, error) {
	m.mu.Lock()
	m.individualFetchCalls++
	m.mu.Unlock()
	if m.fetchIndividualFunc != nil {
		return m.fetchIndividualFunc(ctx, accessToken, individualID)
	}
	return &provider.Individual{ID: individualID, FirstName: "Test", IsActive: true}, nil
}

func (m *mockProviderClient) FetchPayStatements(ctx context.Context, accessToken, individualID string) ([]provider.PayStatement, error) {
	if m.fetchPayStmtsFunc != nil {
		return m.fetchPayStmtsFunc(ctx, accessToken, individualID)
	}
	return nil, nil
}

// mockConnectionStore is an in-memory ConnectionStore
type mockConnectionStore struct {
	mu     sync.Mutex
	conns  map[string]*models.Connection
	events []models.AuditEvent
}

func newMockConnectionStore() *mockConnectionStore {
	return &mockConnectionStore{conns: map[string]*models.Connection{}}
}

func (m *mockConnectionStore) Create(ctx context.Context, conn *models.Connection, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *conn
	m.conns[conn.ID] = &copied
	m.events = append(m.events, *event)
	return nil
}

func (m *mockConnectionStore) GetByID(ctx context.Context, connectionID string) (*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[connectionID]
	if !ok {
		return nil, repository.ErrConnectionNotFound
	}
	copied := *conn
	return &copied, nil
}

func (m *mockConnectionStore) ListByOwner(ctx context.Context, userID, organizationID *string) ([]models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Connection
	for _, conn := range m.conns {
		if userID != nil && (conn.UserID == nil || *conn.UserID != *userID) {
			continue
		}
		if organizationID != nil && (conn.OrganizationID == nil || *conn.OrganizationID != *organizationID) {
			continue
		}
		out = append(out, *conn)
	}
	return out, nil
}

func (m *mockConnectionStore) MarkError(ctx context.Context, connectionID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[connectionID]
	if !ok {
		return repository.ErrConnectionNotFound
	}
	if conn.Status != models.ConnectionStatusActive {
		return nil
	}
	conn.Status = models.ConnectionStatusError
	m.events = append(m.events, models.NewAuditEvent(models.EventIntegrationErrored, nil, "connection", connectionID, "update", models.JSONB{"reason": reason}))
	return nil
}

func (m *mockConnectionStore) MarkRevoked(ctx context.Context, connectionID string, actorID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[connectionID]
	if !ok {
		return repository.ErrConnectionNotFound
	}
	if conn.Status == models.ConnectionStatusRevoked {
		return nil
	}
	conn.Status = models.ConnectionStatusRevoked
	m.events = append(m.events, models.NewAuditEvent(models.EventIntegrationDisconnected, actorID, "connection", connectionID, "update", nil))
	return nil
}

func (m *mockConnectionStore) TouchLastSync(ctx context.Context, connectionID string, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.conns[connectionID]; ok {
		conn.LastSyncAt = &syncedAt
	}
	return nil
}

func (m *mockConnectionStore) UpdateCredential(ctx context.Context, connectionID string, credential []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[connectionID]
	if !ok {
		return repository.ErrConnectionNotFound
	}
	conn.Credential = credential
	return nil
}

func (m *mockConnectionStore) status(connectionID string) models.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[connectionID].Status
}

// mockAuditStore is an in-memory AuditStore. Events are appended in order;
// reads return newest first, like the real repository.
type mockAuditStore struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (m *mockAuditStore) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].EntityType == entityType && m.events[i].EntityID == entityID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *mockAuditStore) add(events ...models.AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
}

// mockSyncJobStore is an in-memory SyncJobStore
type mockSyncJobStore struct {
	mu     sync.Mutex
	jobs   map[string]*models.SyncJob
	events []models.AuditEvent
}

func newMockSyncJobStore() *mockSyncJobStore {
	return &mockSyncJobStore{jobs: map[string]*models.SyncJob{}}
}

func (m *mockSyncJobStore) Create(ctx context.Context, job *models.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *mockSyncJobStore) GetByID(ctx context.Context, jobID string) (*models.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *mockSyncJobStore) HasActiveJob(ctx context.Context, connectionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.ConnectionID == connectionID && !job.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSyncJobStore) MarkProcessing(ctx context.Context, jobID string, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status != models.JobStatusPending {
		return fmt.Errorf("job %s is not pending", jobID)
	}
	job.Status = models.JobStatusProcessing
	m.events = append(m.events, *event)
	return nil
}

func (m *mockSyncJobStore) IncrementProcessed(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		job.RecordsProcessed++
	}
	return nil
}

func (m *mockSyncJobStore) IncrementFailed(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		job.RecordsFailed++
	}
	return nil
}

func (m *mockSyncJobStore) Finalize(ctx context.Context, jobID string, status models.SyncJobStatus, errorMessage *string, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status != models.JobStatusProcessing {
		return fmt.Errorf("job %s is not processing", jobID)
	}
	now := time.Now()
	job.Status = status
	job.ErrorMessage = errorMessage
	job.CompletedAt = &now
	m.events = append(m.events, *event)
	return nil
}

func (m *mockSyncJobStore) get(jobID string) models.SyncJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[jobID]
}

// mockEntityStore is an in-memory EntityStore keyed by the natural key. It is
// mutex-protected because the engine upserts from concurrent workers.
type mockEntityStore struct {
	mu            sync.Mutex
	employees     map[string]*models.Employee
	payRuns       map[string]*models.PayRun
	payStatements map[string]*models.PayStatement
	failUpserts   bool
}

func newMockEntityStore() *mockEntityStore {
	return &mockEntityStore{
		employees:     map[string]*models.Employee{},
		payRuns:       map[string]*models.PayRun{},
		payStatements: map[string]*models.PayStatement{},
	}
}

func naturalKeyOf(connectionID, providerRecordID string) string {
	return connectionID + "/" + providerRecordID
}

func (m *mockEntityStore) UpsertEmployee(ctx context.Context, employee *models.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpserts {
		return fmt.Errorf("storage unavailable")
	}
	key := naturalKeyOf(employee.ConnectionID, employee.ProviderRecordID)
	if existing, ok := m.employees[key]; ok {
		employee.ID = existing.ID // natural key is never reassigned
	}
	copied := *employee
	m.employees[key] = &copied
	return nil
}

func (m *mockEntityStore) UpsertPayRun(ctx context.Context, payRun *models.PayRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpserts {
		return fmt.Errorf("storage unavailable")
	}
	key := naturalKeyOf(payRun.ConnectionID, payRun.ProviderRecordID)
	if existing, ok := m.payRuns[key]; ok {
		payRun.ID = existing.ID
	}
	copied := *payRun
	m.payRuns[key] = &copied
	return nil
}

func (m *mockEntityStore) UpsertPayStatement(ctx context.Context, statement *models.PayStatement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpserts {
		return fmt.Errorf("storage unavailable")
	}
	key := naturalKeyOf(statement.ConnectionID, statement.ProviderRecordID)
	if existing, ok := m.payStatements[key]; ok {
		statement.ID = existing.ID
	}
	copied := *statement
	m.payStatements[key] = &copied
	return nil
}

func (m *mockEntityStore) employeeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.employees)
}

func (m *mockEntityStore) payStatementCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payStatements)
}

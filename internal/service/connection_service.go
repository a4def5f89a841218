package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taxfolio/paysync/internal/models"
	"github.com/taxfolio/paysync/internal/provider"
	"github.com/taxfolio/paysync/internal/vault"
)

// OwnerRef identifies the owner of a connection. Exactly one of the two
// references must be set.
type OwnerRef struct {
	UserID         *string
	OrganizationID *string
}

// Validate enforces the ownership invariant.
func (o OwnerRef) Validate() error {
	if o.UserID == nil && o.OrganizationID == nil {
		return fmt.Errorf("%w: connection requires a user or organization owner", ErrValidation)
	}
	if o.UserID != nil && o.OrganizationID != nil {
		return fmt.Errorf("%w: connection cannot be owned by both a user and an organization", ErrValidation)
	}
	return nil
}

// ActorID returns whichever owner reference is set, for audit attribution.
func (o OwnerRef) ActorID() *string {
	if o.UserID != nil {
		return o.UserID
	}
	return o.OrganizationID
}

// ConnectionSummary is the caller-facing view of a connection. Credential
// bytes never leave the service layer.
type ConnectionSummary struct {
	ID                string
	Provider          string
	ProviderAccountID string
	Scopes            []string
	Status            models.ConnectionStatus
	LastSyncAt        *time.Time
	CreatedAt         time.Time
}

type ConnectionService struct {
	connRepo       ConnectionStore
	auditRepo      AuditStore
	providerClient ProviderClient
	vault          *vault.Vault
}

func NewConnectionService(connRepo ConnectionStore, auditRepo AuditStore, providerClient ProviderClient, v *vault.Vault) *ConnectionService {
	return &ConnectionService{
		connRepo:       connRepo,
		auditRepo:      auditRepo,
		providerClient: providerClient,
		vault:          v,
	}
}

// StartConnection exchanges an authorization code for token material,
// encrypts it, and persists a new active connection with its audit event.
func (s *ConnectionService) StartConnection(ctx context.Context, owner OwnerRef, providerName, authCode string) (*ConnectionSummary, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if providerName == "" {
		return nil, fmt.Errorf("%w: provider is required", ErrValidation)
	}
	if authCode == "" {
		return nil, fmt.Errorf("%w: authorization code is required", ErrValidation)
	}

	token, err := s.providerClient.ExchangeCode(ctx, authCode)
	if err != nil {
		if provider.IsAuthError(err) {
			return nil, fmt.Errorf("%w: %v", ErrProviderAuth, err)
		}
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	envelope, err := encryptCredential(s.vault, credentialFromToken(token))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential: %w", err)
	}

	now := time.Now()
	conn := &models.Connection{
		ID:                uuid.New().String(),
		UserID:            owner.UserID,
		OrganizationID:    owner.OrganizationID,
		Provider:          providerName,
		ProviderAccountID: token.ProviderAccountID,
		Credential:        envelope,
		Scopes:            strings.Join(token.Scopes, " "),
		Status:            models.ConnectionStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	event := models.NewAuditEvent(models.EventIntegrationConnected, owner.ActorID(), "connection", conn.ID, "create", models.JSONB{
		"provider":            providerName,
		"provider_account_id": token.ProviderAccountID,
	})

	if err := s.connRepo.Create(ctx, conn, &event); err != nil {
		return nil, err
	}

	log.Printf("Connection %s created for provider %s (account: %s)", conn.ID, providerName, token.ProviderAccountID)

	return summaryOf(conn), nil
}

// GetConnection returns the caller-facing view of one connection
func (s *ConnectionService) GetConnection(ctx context.Context, connectionID string) (*ConnectionSummary, error) {
	conn, err := s.connRepo.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return summaryOf(conn), nil
}

// ListConnections returns all connections for an owner
func (s *ConnectionService) ListConnections(ctx context.Context, owner OwnerRef) ([]ConnectionSummary, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	conns, err := s.connRepo.ListByOwner(ctx, owner.UserID, owner.OrganizationID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConnectionSummary, 0, len(conns))
	for i := range conns {
		summaries = append(summaries, *summaryOf(&conns[i]))
	}
	return summaries, nil
}

const defaultHistoryLimit = 50

// ConnectionHistory returns the audit trail for one connection, newest first.
func (s *ConnectionService) ConnectionHistory(ctx context.Context, connectionID string, limit int) ([]models.AuditEvent, error) {
	if _, err := s.connRepo.GetByID(ctx, connectionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.auditRepo.ListByEntity(ctx, "connection", connectionID, limit)
}

// Disconnect revokes a connection on explicit owner request
func (s *ConnectionService) Disconnect(ctx context.Context, connectionID string, actorID *string) error {
	if _, err := s.connRepo.GetByID(ctx, connectionID); err != nil {
		return err
	}
	return s.connRepo.MarkRevoked(ctx, connectionID, actorID)
}

func summaryOf(conn *models.Connection) *ConnectionSummary {
	var scopes []string
	if conn.Scopes != "" {
		scopes = strings.Fields(conn.Scopes)
	}
	return &ConnectionSummary{
		ID:                conn.ID,
		Provider:          conn.Provider,
		ProviderAccountID: conn.ProviderAccountID,
		Scopes:            scopes,
		Status:            conn.Status,
		LastSyncAt:        conn.LastSyncAt,
		CreatedAt:         conn.CreatedAt,
	}
}

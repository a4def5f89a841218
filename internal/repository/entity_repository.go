package repository

import (
	"context"
	"fmt"

	"github.com/taxfolio/paysync/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntityRepository persists locally mirrored provider records. Every upsert
// keys on (connection_id, provider_record_id) and is a single atomic
// statement, so concurrent writers cannot tear one record.
type EntityRepository struct {
	db *gorm.DB
}

func NewEntityRepository(db *gorm.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

var naturalKey = []clause.Column{
	{Name: "connection_id"},
	{Name: "provider_record_id"},
}

// UpsertEmployee inserts or overwrites an employee row by its natural key.
// The id and created_at of an existing row are never reassigned.
func (r *EntityRepository) UpsertEmployee(ctx context.Context, employee *models.Employee) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: naturalKey,
		DoUpdates: clause.AssignmentColumns([]string{
			"first_name", "last_name", "email", "title", "department",
			"encrypted_national_id", "start_date", "end_date", "status",
			"source_data", "last_seen_at", "updated_at",
		}),
	}).Create(employee)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert employee: %w", result.Error)
	}
	return nil
}

// UpsertPayRun inserts or overwrites a pay run row by its natural key.
func (r *EntityRepository) UpsertPayRun(ctx context.Context, payRun *models.PayRun) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: naturalKey,
		DoUpdates: clause.AssignmentColumns([]string{
			"pay_date", "period_start", "period_end", "status",
			"source_data", "last_seen_at", "updated_at",
		}),
	}).Create(payRun)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert pay run: %w", result.Error)
	}
	return nil
}

// UpsertPayStatement inserts or overwrites a pay statement row by its natural key.
func (r *EntityRepository) UpsertPayStatement(ctx context.Context, statement *models.PayStatement) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: naturalKey,
		DoUpdates: clause.AssignmentColumns([]string{
			"employee_provider_id", "pay_run_provider_id", "gross_pay", "net_pay",
			"tax_withheld", "currency", "pay_date", "status",
			"source_data", "last_seen_at", "updated_at",
		}),
	}).Create(statement)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert pay statement: %w", result.Error)
	}
	return nil
}
